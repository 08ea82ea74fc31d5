package models

// Search term keys.
const (
	TermSearchText = "Search Text"
	TermSearchURL  = "Search Url"
	TermMake       = "Make"
	TermModel      = "Model"
	TermTrim       = "Trim"
	TermMinYear    = "Min Year"
	TermMaxYear    = "Max Year"
	TermMaxMiles   = "Max Miles"
	TermFuelType   = "Fuel Type"
	TermDrive      = "Drive"
)

// Task describes one scrape assignment.
type Task struct {
	TaskName    string            `yaml:"TaskName" json:"TaskName"`
	Host        string            `yaml:"Host" json:"Host"`
	SearchTerms map[string]string `yaml:"SearchTerms" json:"SearchTerms"`
}

// Term returns a search term, or "" when unset.
func (t *Task) Term(name string) string {
	if t == nil || t.SearchTerms == nil {
		return ""
	}
	return t.SearchTerms[name]
}

// AccountInfo identifies the account a run scrapes as.
type AccountInfo struct {
	AccountID string `yaml:"AccountID" json:"AccountID"`
}

// ProxyInfo is the proxy assigned to an account.
type ProxyInfo struct {
	ProxyIp       string `yaml:"ProxyIp" json:"ProxyIp"` //nolint:revive // upstream key
	ProxyPort     string `yaml:"ProxyPort" json:"ProxyPort"`
	ProxyUsername string `yaml:"ProxyUsername" json:"ProxyUsername"`
	ProxyPassword string `yaml:"ProxyPassword" json:"ProxyPassword"`
	ProxyScheme   string `yaml:"ProxyScheme,omitempty" json:"ProxyScheme,omitempty"`
}

// User is the identity a run scrapes as.
type User struct {
	AccountInfo AccountInfo `yaml:"AccountInfo" json:"AccountInfo"`
	ProxyInfo   ProxyInfo   `yaml:"ProxyInfo" json:"ProxyInfo"`
}

// AccountID returns the account id, or "" for a nil user.
func (u *User) AccountID() string {
	if u == nil {
		return ""
	}
	return u.AccountInfo.AccountID
}

// HasProxy reports whether a proxy IP is assigned.
func (u *User) HasProxy() bool {
	return u != nil && u.ProxyInfo.ProxyIp != ""
}

// Redacted returns a copy of u with the proxy password masked.
func (u User) Redacted() User {
	if u.ProxyInfo.ProxyPassword != "" {
		u.ProxyInfo.ProxyPassword = "****"
	}
	return u
}

// UserTelemetry records who ran a task.
type UserTelemetry struct {
	TaskName  string `json:"TaskName"`
	Host      string `json:"Host"`
	AccountID string `json:"AccountID"`
}

// NewUserTelemetry builds the telemetry row for task and user.
func NewUserTelemetry(task *Task, user *User) UserTelemetry {
	ut := UserTelemetry{AccountID: user.AccountID()}
	if task != nil {
		ut.TaskName = task.TaskName
		ut.Host = task.Host
	}
	return ut
}
