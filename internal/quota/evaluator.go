package quota

import (
	"fmt"

	"github.com/hoststack/license-service/internal/models"
)

// Remaining value reported for features that do not consume quota.
const Unlimited = -1

// Feature names deployed products send, mapped to the quota resource
// they consume.
const (
	FeatureCreateAccount  = "create_account"
	FeatureCreateDomain   = "create_domain"
	FeatureCreateDatabase = "create_database"
	FeatureCreateEmail    = "create_email"
)

type Decision struct {
	Allowed   bool
	Remaining int
	Message   string
}

// Evaluate checks a requested feature against the license's counters.
// It never mutates them; incrementing usage belongs to the provisioning
// flow of the feature itself.
//
// Unknown features are allowed with an unlimited sentinel. Permissive on
// purpose, but tagged in the message so every audit row shows it.
func Evaluate(license *models.License, feature string) Decision {
	var current, max int
	var resource string

	switch feature {
	case FeatureCreateAccount:
		current, max, resource = license.CurrentAccounts, license.MaxAccounts, "Account"
	case FeatureCreateDomain:
		current, max, resource = license.CurrentDomains, license.MaxDomains, "Domain"
	case FeatureCreateDatabase:
		current, max, resource = license.CurrentDatabases, license.MaxDatabases, "Database"
	case FeatureCreateEmail:
		current, max, resource = license.CurrentEmails, license.MaxEmails, "Email"
	default:
		return Decision{
			Allowed:   true,
			Remaining: Unlimited,
			Message:   fmt.Sprintf("unknown feature %q; allowing by default", feature),
		}
	}

	if current >= max {
		return Decision{
			Allowed: false,
			Message: resource + " quota exceeded",
		}
	}

	return Decision{
		Allowed:   true,
		Remaining: max - current,
		Message:   "Quota available",
	}
}
