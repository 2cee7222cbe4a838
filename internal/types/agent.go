package types

// Agent is an identity resolved from the directory. SipAccount links it to
// the signaling layer; resolution must yield exactly one agent per account.
type Agent struct {
	ID          string `json:"id"`
	Username    string `json:"username"`
	DisplayName string `json:"uname"`
	SipAccount  string `json:"sipaccount"`
	OrganID     string `json:"organ,omitempty"`
	Tenant      string `json:"orgi"`
}

// Organ is the organizational unit an agent belongs to.
type Organ struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Tenant string `json:"orgi"`
}
