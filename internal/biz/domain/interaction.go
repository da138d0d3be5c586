package domain

import "time"

// Interaction is one AI pipeline outcome, recorded for analytics
type Interaction struct {
	Timestamp   time.Time      `json:"timestamp"`
	ChatID      string         `json:"chatId"`
	Intent      IntentCategory `json:"intent"`
	BuyingScore float64        `json:"buyingScore"`
	Confidence  float64        `json:"confidence"`
	Accepted    bool           `json:"accepted"`
	Reason      string         `json:"reason"`
	Cleaned     bool           `json:"cleaned"`
}

// DailyStats aggregates interactions for one day key
type DailyStats struct {
	Date               string                 `json:"date"`
	TotalInteractions  int                    `json:"totalInteractions"`
	Successful         int                    `json:"successful"`
	LowConfidence      int                    `json:"lowConfidence"`
	DerivationsToHuman int                    `json:"derivationsToHuman"`
	CleanedResponses   int                    `json:"cleanedResponses"`
	AverageConfidence  float64                `json:"averageConfidence"`
	Intents            map[IntentCategory]int `json:"intents"`
}

// AnalyticsSummary covers the last Days days
type AnalyticsSummary struct {
	Days              int          `json:"days"`
	TotalInteractions int          `json:"totalInteractions"`
	SuccessRate       float64      `json:"successRate"`
	AverageConfidence float64      `json:"averageConfidence"`
	Daily             []DailyStats `json:"daily"`
}
