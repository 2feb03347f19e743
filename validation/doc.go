// Package validation checks coordkit inputs and configuration.
//
// Struct tag validation (go-playground/validator) is used for configuration
// structs; field names in messages follow their mapstructure keys:
//
//	type OTPConfig struct {
//	    MaxAttempts int `mapstructure:"max_attempts" validate:"gte=1"`
//	}
//	err := validation.Validate(cfg)
//
// The programmatic Validator collects field errors on hot paths where a
// reflection pass is not wanted:
//
//	err := validation.New().
//	    Required("user_id", rec.UserID).
//	    PositiveDuration("ttl", ttl).
//	    Err()
//
// Both report an INVALID_INPUT AppError whose "fields" detail lists every
// failing field.
package validation
