package utils

import (
	"errors"
	"testing"
)

type bookForm struct {
	ISBN      string `json:"isbn" binding:"required,isbn"`
	ImageURL  string `json:"image_url" binding:"required,imageurl"`
	YearOfPub int    `json:"year_of_pub" binding:"required,pubyear"`
	Author    string `json:"author" binding:"required,personname"`
}

type accountForm struct {
	Username string `json:"username" binding:"required,username"`
	Email    string `json:"email" binding:"required,email"`
}

func TestValidateCustomRules(t *testing.T) {
	v := NewValidator()

	valid := bookForm{ISBN: "978-1-2345-6789-0", ImageURL: "https://example.com/a.png", YearOfPub: 1999, Author: "Mary-Jane O'Neil"}
	if err := v.Validate(valid); err != nil {
		t.Fatalf("expected valid form, got %v", err)
	}

	invalid := bookForm{ISBN: "12345", ImageURL: "https://example.com/a.gif", YearOfPub: 1800, Author: "R2D2"}
	err := v.Validate(invalid)
	var ve *ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected *ValidationError, got %T", err)
	}
	for _, field := range []string{"isbn", "image_url", "year_of_pub", "author"} {
		if _, ok := ve.Errors[field]; !ok {
			t.Errorf("expected error for field %s, got %v", field, ve.Errors)
		}
	}
}

func TestValidateUsername(t *testing.T) {
	v := NewValidator()
	tests := map[string]bool{
		"ada":                   true,
		"ada_lovelace":          true,
		"a1":                    false,
		"1ada":                  false,
		"ada-lovelace":          false,
		"averyveryverylongname": false,
	}
	for username, want := range tests {
		err := v.Validate(accountForm{Username: username, Email: "a@example.com"})
		if got := err == nil; got != want {
			t.Errorf("username %q valid = %v, want %v (%v)", username, got, want, err)
		}
	}
}

func TestValidationMessagesUseFieldNames(t *testing.T) {
	err := NewValidator().Validate(accountForm{Username: "ada"})
	var ve *ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected *ValidationError, got %T", err)
	}
	if msg := ve.Errors["email"]; msg != "邮箱不能为空" {
		t.Fatalf("unexpected message %q", msg)
	}
}

func TestSanitizeString(t *testing.T) {
	tests := map[string]string{
		"plain text":                           "plain text",
		"  padded  ":                           "padded",
		"<b>bold</b> move":                     "bold move",
		"<script>alert('x')</script>hello":     "hello",
		"<SCRIPT type=x>\nbad()\n</SCRIPT>ok": "ok",
	}
	for in, want := range tests {
		if got := SanitizeString(in); got != want {
			t.Errorf("SanitizeString(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestValidatePasswordStrength(t *testing.T) {
	type form struct {
		Password string `json:"password" binding:"required,password"`
	}
	v := NewValidator()
	if err := v.Validate(form{Password: "Str0ng!pass"}); err != nil {
		t.Fatalf("expected strong password to pass: %v", err)
	}
	for _, weak := range []string{"short1!", "alllowercase1!", "NoDigits!!", "NoSpecial123"} {
		if err := v.Validate(form{Password: weak}); err == nil {
			t.Errorf("expected %q to be rejected", weak)
		}
	}
}
