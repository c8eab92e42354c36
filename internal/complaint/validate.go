package complaint

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/opensource-finance/casewatch/internal/domain"
)

var (
	validate = newValidator()

	phoneRegex = regexp.MustCompile(`^\+?[0-9]{10,15}$`)
	phoneStrip = strings.NewReplacer(" ", "", "-", "", "(", "", ")", "", ".", "")
)

// clockSkew tolerates filer clocks slightly ahead of ours.
const clockSkew = 10 * time.Minute

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())

	_ = v.RegisterValidation("phone", func(fl validator.FieldLevel) bool {
		return phoneRegex.MatchString(fl.Field().String())
	})
	_ = v.RegisterValidation("fraud_type", func(fl validator.FieldLevel) bool {
		_, err := domain.ParseFraudType(fl.Field().String())
		return err == nil
	})
	_ = v.RegisterValidation("priority", func(fl validator.FieldLevel) bool {
		_, err := domain.ParsePriority(fl.Field().String())
		return err == nil
	})
	_ = v.RegisterValidation("not_future", func(fl validator.FieldLevel) bool {
		t, ok := fl.Field().Interface().(time.Time)
		return ok && !t.IsZero() && !t.After(time.Now().Add(clockSkew))
	})
	return v
}

// NormalizePhone removes common separators from a phone number.
func NormalizePhone(phone string) string {
	return phoneStrip.Replace(strings.TrimSpace(phone))
}

func normalize(req *domain.ComplaintRequest) {
	req.Victim.Name = strings.TrimSpace(req.Victim.Name)
	req.Victim.Phone = NormalizePhone(req.Victim.Phone)
	req.Victim.Email = strings.ToLower(strings.TrimSpace(req.Victim.Email))
	req.Victim.Address = strings.TrimSpace(req.Victim.Address)
	req.Victim.DeviceToken = strings.TrimSpace(req.Victim.DeviceToken)
	req.Description = strings.TrimSpace(req.Description)
	req.Bank.BankName = strings.TrimSpace(req.Bank.BankName)
	req.Bank.AccountNumber = strings.ReplaceAll(strings.TrimSpace(req.Bank.AccountNumber), " ", "")
	req.Bank.TransactionRef = strings.TrimSpace(req.Bank.TransactionRef)
}

// validateRequest runs the struct rules and reports every failing field.
func validateRequest(req *domain.ComplaintRequest) error {
	err := validate.Struct(req)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}

	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fieldMessage(fe))
	}
	return fmt.Errorf("%w: %s", domain.ErrValidation, strings.Join(msgs, "; "))
}

func fieldMessage(fe validator.FieldError) string {
	field := strings.TrimPrefix(fe.Namespace(), "ComplaintRequest.")
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "gt":
		return field + " must be greater than " + fe.Param()
	case "min":
		return field + " must be at least " + fe.Param() + " characters"
	case "max":
		return field + " must be at most " + fe.Param() + " characters"
	case "not_future":
		return field + " cannot be in the future"
	default:
		return field + " is not a valid " + fe.Tag()
	}
}
