package auth

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
	"time"

	"google.golang.org/api/googleapi"
	identitytoolkit "google.golang.org/api/identitytoolkit/v3"
	"google.golang.org/api/option"

	"gagyebu/internal/core"
)

// FirebaseProvider talks to Firebase Authentication's REST surface.
type FirebaseProvider struct {
	svc *identitytoolkit.Service
	now func() time.Time
}

// NewFirebaseProvider creates a provider for the project owning apiKey.
// Extra options (endpoint, HTTP client) are passed through.
func NewFirebaseProvider(ctx context.Context, apiKey string, opts ...option.ClientOption) (*FirebaseProvider, error) {
	if apiKey == "" {
		return nil, errors.New("firebase api key is required")
	}
	opts = append([]option.ClientOption{option.WithAPIKey(apiKey)}, opts...)
	svc, err := identitytoolkit.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create identitytoolkit service: %w", err)
	}
	return &FirebaseProvider{svc: svc, now: time.Now}, nil
}

func (p *FirebaseProvider) Name() string { return "firebase" }

func (p *FirebaseProvider) SignIn(ctx context.Context, email, password string) (Account, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		return Account{}, err
	}
	resp, err := p.svc.Relyingparty.VerifyPassword(&identitytoolkit.IdentitytoolkitRelyingpartyVerifyPasswordRequest{
		Email:             email,
		Password:          password,
		ReturnSecureToken: true,
	}).Context(ctx).Do()
	if err != nil {
		return Account{}, mapFirebaseError(err)
	}
	return Account{
		UID:         resp.LocalId,
		Email:       resp.Email,
		DisplayName: resp.DisplayName,
		PhotoURL:    resp.PhotoUrl,
		Token:       resp.IdToken,
		CreatedAt:   p.now().UTC(),
	}, nil
}

func (p *FirebaseProvider) SignUp(ctx context.Context, email, password string) (Account, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		return Account{}, err
	}
	resp, err := p.svc.Relyingparty.SignupNewUser(&identitytoolkit.IdentitytoolkitRelyingpartySignupNewUserRequest{
		Email:    email,
		Password: password,
	}).Context(ctx).Do()
	if err != nil {
		return Account{}, mapFirebaseError(err)
	}
	return Account{
		UID:         resp.LocalId,
		Email:       resp.Email,
		DisplayName: resp.DisplayName,
		Token:       resp.IdToken,
		CreatedAt:   p.now().UTC(),
	}, nil
}

func (p *FirebaseProvider) UpdateProfile(ctx context.Context, _ string, token string, upd core.ProfileUpdate) error {
	if token == "" {
		return newError(CodeUnknown, errors.New("missing id token"))
	}
	req := &identitytoolkit.IdentitytoolkitRelyingpartySetAccountInfoRequest{IdToken: token}
	if upd.Nickname != nil {
		req.DisplayName = strings.TrimSpace(*upd.Nickname)
		if req.DisplayName == "" {
			req.DeleteAttribute = append(req.DeleteAttribute, "DISPLAY_NAME")
		}
	}
	if upd.PhotoURL != nil {
		req.PhotoUrl = *upd.PhotoURL
		if req.PhotoUrl == "" {
			req.DeleteAttribute = append(req.DeleteAttribute, "PHOTO_URL")
		}
	}
	if _, err := p.svc.Relyingparty.SetAccountInfo(req).Context(ctx).Do(); err != nil {
		return mapFirebaseError(err)
	}
	return nil
}

// firebaseCodes maps REST error message prefixes to auth codes. Messages
// look like "WEAK_PASSWORD : Password should be at least 6 characters".
var firebaseCodes = []struct {
	prefix string
	code   Code
}{
	{"EMAIL_NOT_FOUND", CodeUnknownAccount},
	{"INVALID_PASSWORD", CodeWrongCredential},
	{"INVALID_LOGIN_CREDENTIALS", CodeWrongCredential},
	{"INVALID_EMAIL", CodeInvalidEmail},
	{"TOO_MANY_ATTEMPTS_TRY_LATER", CodeRateLimited},
	{"USER_DISABLED", CodeDisabled},
	{"EMAIL_EXISTS", CodeEmailInUse},
	{"WEAK_PASSWORD", CodeWeakPassword},
}

func mapFirebaseError(err error) error {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		for _, fc := range firebaseCodes {
			if strings.HasPrefix(gerr.Message, fc.prefix) {
				return newError(fc.code, err)
			}
		}
		return newError(CodeUnknown, err)
	}
	var nerr net.Error
	var uerr *url.Error
	if errors.As(err, &nerr) || errors.As(err, &uerr) ||
		errors.Is(err, context.DeadlineExceeded) {
		return newError(CodeNetwork, err)
	}
	return newError(CodeUnknown, err)
}
