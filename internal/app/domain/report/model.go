package report

import "time"

// UnitRow is one unit's aggregate compliance figures for a reporting window.
type UnitRow struct {
	UnitID           string   `json:"unit_id" db:"unit_id"`
	UnitName         string   `json:"unit_name" db:"unit_name"`
	SiteID           string   `json:"site_id" db:"site_id"`
	ReadingCount     int      `json:"reading_count" db:"reading_count"`
	MinTempC         *float64 `json:"min_temp_c" db:"min_temp_c"`
	MaxTempC         *float64 `json:"max_temp_c" db:"max_temp_c"`
	AvgTempC         *float64 `json:"avg_temp_c" db:"avg_temp_c"`
	AlertCount       int      `json:"alert_count" db:"alert_count"`
	ExcursionMinutes int      `json:"excursion_minutes" db:"excursion_minutes"`
}

// Compliance is a full report for an organization over a window.
type Compliance struct {
	OrgID       string    `json:"org_id"`
	SiteID      string    `json:"site_id,omitempty"`
	UnitID      string    `json:"unit_id,omitempty"`
	From        time.Time `json:"from"`
	To          time.Time `json:"to"`
	Units       []UnitRow `json:"units"`
	TotalAlerts int       `json:"total_alerts"`
	GeneratedAt time.Time `json:"generated_at"`
}
