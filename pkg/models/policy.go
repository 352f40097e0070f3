package models

type PolicyValue string

const (
	PolicyAuto          PolicyValue = "auto"
	PolicyCtrl          PolicyValue = "ctrl"
	PolicyCtrlUnlimited PolicyValue = "ctrl_unlimited"
)

const DefaultMaxRequests = 3

// PolicyValues lists the accepted values in the order they are shown to admins.
var PolicyValues = []PolicyValue{PolicyCtrlUnlimited, PolicyCtrl, PolicyAuto}

func (p PolicyValue) Valid() bool {
	for _, v := range PolicyValues {
		if p == v {
			return true
		}
	}
	return false
}

type Policy struct {
	UserPolicy       PolicyValue `json:"user_policy"`
	AdminPolicy      PolicyValue `json:"admin_policy"`
	UserMaxRequests  int         `json:"user_max_requests"`
	AdminMaxRequests int         `json:"admin_max_requests"`
}

// DefaultPolicy is the row created on first start.
func DefaultPolicy() Policy {
	return Policy{
		UserPolicy:       PolicyCtrlUnlimited,
		AdminPolicy:      PolicyCtrlUnlimited,
		UserMaxRequests:  DefaultMaxRequests,
		AdminMaxRequests: DefaultMaxRequests,
	}
}
