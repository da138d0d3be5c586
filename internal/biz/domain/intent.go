package domain

// IntentCategory is a coarse message intent
type IntentCategory string

const (
	IntentBuying  IntentCategory = "buying"
	IntentInfo    IntentCategory = "info"
	IntentGeneral IntentCategory = "general"
)

// Intent is derived per message and never persisted
type Intent struct {
	Category    IntentCategory `json:"category"`
	BuyingScore float64        `json:"buyingScore"`
	IsFirstTime bool           `json:"isFirstTime"`
	IsUrgent    bool           `json:"isUrgent"`
}
