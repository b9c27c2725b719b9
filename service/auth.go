package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"storefront/client"
	models "storefront/model"
)

// UserRemote is the remote user service.
type UserRemote interface {
	SignIn(ctx context.Context, email, password string) (client.SignInResult, error)
	SignUp(ctx context.Context, email, firstName, lastName, password string) (string, error)
	Users(ctx context.Context, token string) ([]models.User, error)
}

// SignUpRequest carries the fields of a new account.
type SignUpRequest struct {
	Email     string `json:"email"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Password  string `json:"password"`
}

func (s *Service) SignIn(ctx context.Context, session, email, password string) error {
	if email == "" || password == "" {
		return fmt.Errorf("%w: email and password required", ErrInvalidInput)
	}
	res, err := s.users.SignIn(ctx, email, password)
	if err != nil {
		return err
	}
	if err := s.store.SetCredential(ctx, session, res.Token); err != nil {
		return fmt.Errorf("save credential: %w", err)
	}
	// a reference from an earlier sign-in never outlives this one
	if res.SessionID != "" {
		err = s.store.SetSessionRef(ctx, session, res.SessionID)
	} else {
		err = s.store.ClearSessionRef(ctx, session)
	}
	if err != nil {
		return fmt.Errorf("save session reference: %w", err)
	}
	s.resetCart(session)
	s.logger.Info("signed in", zap.String("session", session))
	return nil
}

// SignUp creates an account and keeps the credential if the service issued one.
func (s *Service) SignUp(ctx context.Context, session string, req SignUpRequest) error {
	if req.Email == "" || req.Password == "" {
		return fmt.Errorf("%w: email and password required", ErrInvalidInput)
	}
	tok, err := s.users.SignUp(ctx, req.Email, req.FirstName, req.LastName, req.Password)
	if err != nil {
		return err
	}
	if tok == "" {
		return nil
	}
	if err := s.store.SetCredential(ctx, session, tok); err != nil {
		return fmt.Errorf("save credential: %w", err)
	}
	s.resetCart(session)
	return nil
}

// SignOut forgets the credential and the cached cart. A staged checkout stays.
func (s *Service) SignOut(ctx context.Context, session string) error {
	if err := s.store.ClearSession(ctx, session); err != nil {
		return fmt.Errorf("sign out: %w", err)
	}
	s.forget(ctx, session)
	s.logger.Info("signed out", zap.String("session", session))
	return nil
}

func (s *Service) resetCart(session string) {
	if e, ok := s.lookup(session); ok {
		e.Reset()
	}
}

func (s *Service) Users(ctx context.Context, session string) ([]models.User, error) {
	tok, err := s.credential(ctx, session)
	if err != nil {
		return nil, err
	}
	return s.users.Users(ctx, tok)
}
