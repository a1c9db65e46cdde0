// Package qmslicense issues and verifies offline license tokens for QMS
// deployments.
//
// Install with:
//
//	go get github.com/asvo-qms/qms-license-sdk/qmslicense
//
// A license authority holds an Ed25519 private key and signs tiered,
// time-bounded entitlements. Deployments embed only the public key and verify
// tokens with no network access.
//
// # Issuing
//
//	km := qmslicense.NewKeyManager(afero.NewOsFs())
//	kp, err := km.Generate("./keys")
//
//	issuer := qmslicense.NewIssuer(qmslicense.NewSigner(kp.Private))
//	token, payload, err := issuer.Issue(ctx, qmslicense.Params{
//	    Organization: "Acme",
//	    Tier:         qmslicense.TierPro,
//	    DurationDays: 365,
//	})
//
// # Verifying
//
//	v := qmslicense.NewVerifier(pub, qmslicense.WithCurrentFingerprint(fp))
//	res := v.Verify(token, time.Now())
//	switch res.Status() {
//	case qmslicense.StatusValid, qmslicense.StatusGrace:
//	    p, _ := res.Payload()
//	    // enable p.Modules, enforce p.Limits
//	case qmslicense.StatusExpired:
//	    // read-only mode
//	default:
//	    // reject: res.Err() says why
//	}
//
// # Token format
//
// A token is base64url(payload) "." base64url(signature), both unpadded. The
// payload is compact JSON with a fixed field order:
//
//	{"v":1,"iss":"asvo-license-service","lid":"…","sub":"Acme","tier":"pro",
//	 "modules":["qms.capa",…],"limits":{"max_users":50,"max_storage_gb":100},
//	 "iat":1735689600,"exp":1767225600,"grace_days":30}
//
// An optional "fingerprint" field binds the license to one installation.
// Limits of -1 mean unlimited.
package qmslicense
