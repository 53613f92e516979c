package models

// TriggerKind selects how a job's fire times are computed.
type TriggerKind string

const (
	TriggerDate       TriggerKind = "date"
	TriggerInterval   TriggerKind = "interval"
	TriggerCron       TriggerKind = "cron"
	TriggerDependency TriggerKind = "dependency"
)

// IsCalendar reports whether the trigger arms itself from a clock.
func (k TriggerKind) IsCalendar() bool {
	return k == TriggerDate || k == TriggerInterval || k == TriggerCron
}

// IsRepeating reports whether the trigger stays armed after firing.
func (k TriggerKind) IsRepeating() bool {
	return k == TriggerInterval || k == TriggerCron
}

// TriggerSpec holds the trigger kind and every trigger-specific field. Fields that do not
// apply to Kind are ignored.
type TriggerSpec struct {
	Kind TriggerKind `json:"kind" yaml:"trigger" validate:"required,oneof=date interval cron dependency"`

	// interval
	Weeks   int `json:"weeks,omitempty"   yaml:"weeks"   validate:"gte=0"`
	Days    int `json:"days,omitempty"    yaml:"days"    validate:"gte=0"`
	Hours   int `json:"hours,omitempty"   yaml:"hours"   validate:"gte=0"`
	Minutes int `json:"minutes,omitempty" yaml:"minutes" validate:"gte=0"`
	Seconds int `json:"seconds,omitempty" yaml:"seconds" validate:"gte=0"`

	// cron
	Year      string `json:"year,omitempty"        yaml:"year"`
	Month     string `json:"month,omitempty"       yaml:"month"`
	Day       string `json:"day,omitempty"         yaml:"day"`
	Week      string `json:"week,omitempty"        yaml:"week"`
	DayOfWeek string `json:"day_of_week,omitempty" yaml:"day_of_week"`
	Hour      string `json:"hour,omitempty"        yaml:"hour"`
	Minute    string `json:"minute,omitempty"      yaml:"minute"`
	Second    string `json:"second,omitempty"      yaml:"second"`

	// date
	RunDate string `json:"run_date,omitempty" yaml:"run_date"`

	// shared
	Jitter    int    `json:"jitter,omitempty"     yaml:"jitter"     validate:"gte=0"`
	StartDate string `json:"start_date,omitempty" yaml:"start_date"`
	EndDate   string `json:"end_date,omitempty"   yaml:"end_date"`
	Timezone  string `json:"timezone,omitempty"   yaml:"timezone"`
}
