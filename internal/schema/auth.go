package schema

import "regexp"

// Rule sets for the auth endpoints. Messages are part of the API contract
// and match what clients already display.

var nameRe = regexp.MustCompile(`^[a-zA-ZÀ-ÿ\s]+$`)

func emailField() Field {
	return Field{
		Name:      "email",
		Kind:      KindString,
		Normalize: []Normalizer{TrimSpace, Lower},
		Checks: []Check{
			MinLen(1, "Email is required"),
			Email("Invalid email format"),
			MaxLen(254, "Email is too long"),
		},
	}
}

func newPasswordField(name string) Field {
	return Field{
		Name: name,
		Kind: KindString,
		Checks: []Check{
			MinLen(8, "Password must be at least 8 characters long"),
			MaxLen(128, "Password is too long"),
			PasswordStrength("Password must contain at least one lowercase letter, one uppercase letter, and one number"),
		},
	}
}

func confirmPasswordField() Field {
	return Field{
		Name:   "confirmPassword",
		Kind:   KindString,
		Checks: []Check{MinLen(1, "Password confirmation is required")},
	}
}

func passwordsMatch(passwordKey string) Refinement {
	return Refinement{
		Path:    "confirmPassword",
		Message: "Passwords do not match",
		Ok: func(data map[string]any) bool {
			return data[passwordKey] == data["confirmPassword"]
		},
	}
}

var Login = Schema{
	Name: "login",
	Fields: []Field{
		emailField(),
		{
			Name: "password",
			Kind: KindString,
			Checks: []Check{
				MinLen(1, "Password is required"),
				MaxLen(128, "Password is too long"),
			},
		},
		{Name: "rememberMe", Kind: KindBool, Optional: true, Default: false},
	},
}

var Register = Schema{
	Name: "register",
	Fields: []Field{
		emailField(),
		newPasswordField("password"),
		confirmPasswordField(),
		{
			Name:      "firstName",
			Kind:      KindString,
			Normalize: []Normalizer{TrimSpace},
			Checks: []Check{
				MinLen(1, "First name is required"),
				MaxLen(50, "First name is too long"),
				Match(nameRe, "First name can only contain letters and spaces"),
			},
		},
		{
			Name:      "lastName",
			Kind:      KindString,
			Normalize: []Normalizer{TrimSpace},
			Checks: []Check{
				MinLen(1, "Last name is required"),
				MaxLen(50, "Last name is too long"),
				Match(nameRe, "Last name can only contain letters and spaces"),
			},
		},
		{
			Name:   "acceptTerms",
			Kind:   KindBool,
			Checks: []Check{IsTrue("You must accept the terms and conditions")},
		},
	},
	Refinements: []Refinement{passwordsMatch("password")},
}

var ForgotPassword = Schema{
	Name:   "forgotPassword",
	Fields: []Field{emailField()},
}

var ResetPassword = Schema{
	Name: "resetPassword",
	Fields: []Field{
		{
			Name: "token",
			Kind: KindString,
			Checks: []Check{
				MinLen(1, "Reset token is required"),
				MaxLen(500, "Invalid token"),
			},
		},
		newPasswordField("password"),
		confirmPasswordField(),
	},
	Refinements: []Refinement{passwordsMatch("password")},
}

var ChangePassword = Schema{
	Name: "changePassword",
	Fields: []Field{
		{
			Name: "currentPassword",
			Kind: KindString,
			Checks: []Check{
				MinLen(1, "Current password is required"),
				MaxLen(128, "Password is too long"),
			},
		},
		newPasswordField("newPassword"),
		confirmPasswordField(),
	},
	Refinements: []Refinement{
		passwordsMatch("newPassword"),
		{
			Path:    "newPassword",
			Message: "New password must be different from current password",
			Ok: func(data map[string]any) bool {
				return data["currentPassword"] != data["newPassword"]
			},
		},
	},
}

var RefreshToken = Schema{
	Name: "refreshToken",
	Fields: []Field{
		{
			Name: "refreshToken",
			Kind: KindString,
			Checks: []Check{
				MinLen(1, "Refresh token is required"),
				MaxLen(500, "Invalid refresh token"),
			},
		},
	},
}
