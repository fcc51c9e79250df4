// Package schema lists the persisted models. Production schemas are managed
// outside this service; AutoMigrate exists for local runs and tests.
package schema

import (
	costdomain "github.com/smallbiznis/agentdesk/internal/cost/domain"
	creditdomain "github.com/smallbiznis/agentdesk/internal/credit/domain"
	leaddomain "github.com/smallbiznis/agentdesk/internal/lead/domain"
	orgdomain "github.com/smallbiznis/agentdesk/internal/organization/domain"
	paymentdomain "github.com/smallbiznis/agentdesk/internal/payment/domain"
	"gorm.io/gorm"
)

func Models() []any {
	return []any{
		&orgdomain.Organization{},
		&creditdomain.CreditHistory{},
		&leaddomain.Lead{},
		&costdomain.Cost{},
		&paymentdomain.Payment{},
	}
}

func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(Models()...)
}
