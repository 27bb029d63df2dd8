/*
Package authsdk holds the wire types of the account service and a small
client for it.

Public endpoints are called through SDKClient:

	client := authsdk.NewSDKClient("https://accounts.example.com")
	_, err := client.Register(ctx, authsdk.RegisterRequest{
		Email:           "alice@example.com",
		Password:        "Passw0rd!",
		ConfirmPassword: "Passw0rd!",
	})

Signing in is one or two steps. When the account has two-factor
authentication enabled the password step returns a challenge instead of a
session:

	resp, err := client.Login(ctx, authsdk.LoginRequest{Email: email, Password: pw})
	if err != nil {
		return err
	}
	if resp.RequiresTwoFactor {
		resp, err = client.LoginTwoFactor(ctx, resp.TwoFactorToken, authsdk.LoginTwoFactorRequest{Code: code})
		if err != nil {
			return err
		}
	}
	session := client.NewSession(resp.AccessToken)
	info, err := session.GetUserInfo(ctx)

Failed calls return *APIError carrying the HTTP status, an error code such
as "validation_error" or "account_locked", and a message that is safe to
show to the user.
*/
package authsdk
