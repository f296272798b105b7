package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/mail"
	"strings"
	"unicode/utf8"

	"github.com/QKhanh04/innerg-api/internal/common"
)

const maxBodyBytes = 1 << 20

type fieldErrors map[string][]string

func (f fieldErrors) add(field, msg string) {
	f[field] = append(f[field], msg)
}

func (f fieldErrors) err() error {
	if len(f) == 0 {
		return nil
	}
	return common.Validation(f)
}

func notEmpty(f fieldErrors, field, value, label string) {
	if strings.TrimSpace(value) == "" {
		f.add(field, "'"+label+"' must not be empty.")
	}
}

func validEmail(value string) bool {
	addr, err := mail.ParseAddress(value)
	return err == nil && addr.Address == strings.TrimSpace(value)
}

type loginRequest struct {
	EmailOrUsername string `json:"emailOrUsername"`
	Password        string `json:"password"`
}

func (r loginRequest) validate() error {
	f := fieldErrors{}
	notEmpty(f, "emailOrUsername", r.EmailOrUsername, "Email Or Username")
	notEmpty(f, "password", r.Password, "Password")
	return f.err()
}

type googleLoginRequest struct {
	IDToken string `json:"idToken"`
}

func (r googleLoginRequest) validate() error {
	f := fieldErrors{}
	notEmpty(f, "idToken", r.IDToken, "Id Token")
	return f.err()
}

type registerRequest struct {
	UserName        string `json:"userName"`
	Email           string `json:"email"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirmPassword"`
}

func (r registerRequest) validate() error {
	f := fieldErrors{}

	name := strings.TrimSpace(r.UserName)
	notEmpty(f, "userName", name, "User Name")
	if name != "" && utf8.RuneCountInString(name) < 3 {
		f.add("userName", "The length of 'User Name' must be at least 3 characters.")
	}

	email := strings.TrimSpace(r.Email)
	notEmpty(f, "email", email, "Email")
	if email != "" && !validEmail(email) {
		f.add("email", "'Email' is not a valid email address.")
	}

	notEmpty(f, "password", r.Password, "Password")
	if r.ConfirmPassword != r.Password {
		f.add("confirmPassword", "Passwords do not match")
	}
	return f.err()
}

type resetPasswordRequest struct {
	UserID      string `json:"userId"`
	Token       string `json:"token"`
	NewPassword string `json:"newPassword"`
}

func (r resetPasswordRequest) validate() error {
	f := fieldErrors{}
	notEmpty(f, "userId", r.UserID, "User Id")
	notEmpty(f, "token", r.Token, "Token")
	notEmpty(f, "newPassword", r.NewPassword, "New Password")
	return f.err()
}

// emailBody accepts either a bare JSON string or {"email": "..."}.
type emailBody string

func (e *emailBody) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*e = emailBody(s)
		return nil
	}
	var obj struct {
		Email string `json:"email"`
	}
	if err := json.Unmarshal(b, &obj); err != nil {
		return err
	}
	*e = emailBody(obj.Email)
	return nil
}

func (e emailBody) validate() error {
	f := fieldErrors{}
	notEmpty(f, "email", string(e), "Email")
	return f.err()
}

type validator interface {
	validate() error
}

// decode reads a JSON body into dst and runs its validation rules.
func decode(w http.ResponseWriter, r *http.Request, dst validator) error {
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(body).Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return common.BadRequest("Request body is required")
		}
		return common.BadRequest("Malformed request body")
	}
	return dst.validate()
}
