package client

import (
	"context"
	"net/http"

	models "storefront/model"
)

// AuthClient is the remote user service.
type AuthClient struct {
	c *Client
}

func NewAuthClient(c *Client) *AuthClient {
	return &AuthClient{c: c}
}

// SignInResult carries the credential and, when the service issued one, the
// payment session reference.
type SignInResult struct {
	Token     string `json:"token"`
	SessionID string `json:"sessionId"`
}

func (ac *AuthClient) SignIn(ctx context.Context, email, password string) (SignInResult, error) {
	var res SignInResult
	err := ac.c.do(ctx, request{
		method:   http.MethodPost,
		path:     "/user/signIn",
		body:     map[string]string{"email": email, "password": password},
		out:      &res,
		fallback: "An unknown error occurred.",
	})
	if err != nil {
		return SignInResult{}, err
	}
	if res.Token == "" {
		return SignInResult{}, models.AuthError("sign in returned no token")
	}
	return res, nil
}

type signUpRequest struct {
	Email     string `json:"email"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Password  string `json:"password"`
}

// SignUp creates an account. The returned token may be empty.
func (ac *AuthClient) SignUp(ctx context.Context, email, firstName, lastName, password string) (string, error) {
	var res struct {
		Token string `json:"token"`
	}
	err := ac.c.do(ctx, request{
		method:   http.MethodPost,
		path:     "/user/signup",
		body:     signUpRequest{Email: email, FirstName: firstName, LastName: lastName, Password: password},
		out:      &res,
		fallback: "Error creating account",
	})
	return res.Token, err
}

func (ac *AuthClient) Users(ctx context.Context, token string) ([]models.User, error) {
	if token == "" {
		return nil, models.AuthError("Token is not available")
	}
	var users []models.User
	err := ac.c.do(ctx, request{
		method:   http.MethodGet,
		path:     "/user/all",
		query:    tokenQuery(token),
		out:      &users,
		fallback: "Failed to fetch users",
	})
	return users, err
}
