package sql

import (
	"errors"
	"fmt"
	"regexp"

	libinjection "github.com/corazawaf/libinjection-go"
)

// ErrInvalidIdentifier indicates a table or column name is not a plain identifier.
var ErrInvalidIdentifier = errors.New("invalid identifier")

var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]{0,63}$`)

// InjectionCheckResult contains the result of an injection check on a value.
type InjectionCheckResult struct {
	IsSQLi      bool   // True if SQL injection pattern detected
	Fingerprint string // libinjection fingerprint of the detected pattern
	ParamName   string // Name of the argument that failed the check
	ParamValue  any    // The value that was checked
}

func (r *InjectionCheckResult) Error() string {
	return fmt.Sprintf("%s: value matches SQL injection pattern (fingerprint %s)", r.ParamName, r.Fingerprint)
}

// CheckParameterForInjection uses libinjection to detect SQL injection patterns
// in a value. Only strings are checked; other types return nil.
//
//	CheckParameterForInjection("table", "pokemon")              // nil
//	CheckParameterForInjection("table", "x'; DROP TABLE move--") // IsSQLi == true
func CheckParameterForInjection(paramName string, value any) *InjectionCheckResult {
	strValue, ok := value.(string)
	if !ok {
		return nil
	}

	isSQLi, fingerprint := libinjection.IsSQLi(strValue)
	if isSQLi {
		return &InjectionCheckResult{
			IsSQLi:      true,
			Fingerprint: string(fingerprint),
			ParamName:   paramName,
			ParamValue:  value,
		}
	}

	return nil
}

// ValidateIdentifier checks a caller-supplied table or column name before it
// is interpolated into a PRAGMA or quoted identifier.
func ValidateIdentifier(paramName, name string) error {
	if result := CheckParameterForInjection(paramName, name); result != nil {
		return result
	}
	if !identifierPattern.MatchString(name) {
		return fmt.Errorf("%w: %s %q", ErrInvalidIdentifier, paramName, name)
	}
	return nil
}

// QuoteIdentifier wraps a validated identifier in double quotes.
func QuoteIdentifier(name string) string {
	return `"` + name + `"`
}
