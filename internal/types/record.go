package types

import "time"

// ServiceStatus is the call state of a service record.
type ServiceStatus string

const (
	ServiceInCall ServiceStatus = "incall"
	ServiceHangup ServiceStatus = "hangup"
)

// CallClass marks which line a service record belongs to.
type CallClass string

const (
	CallOutsideLine CallClass = "outsideline"
)

// ServiceRecord is the billable/audit record of one agent-visitor
// interaction. EndTime >= StartTime always; Duration is whole seconds and
// never negative; a record is closed exactly once.
type ServiceRecord struct {
	ID        string        `json:"id" dynamodbav:"RecordID"`
	ServiceID string        `json:"serviceid" dynamodbav:"ServiceID"`
	BindingID string        `json:"agentuserid" dynamodbav:"BindingID"`
	Status    ServiceStatus `json:"status" dynamodbav:"Status"`
	Direction Direction     `json:"direction" dynamodbav:"Direction"`
	CallClass CallClass     `json:"calltype" dynamodbav:"CallClass"`

	Caller     string `json:"caller,omitempty" dynamodbav:"Caller"`
	Called     string `json:"called,omitempty" dynamodbav:"Called"`
	CallID     string `json:"callid" dynamodbav:"CallID"`
	DialplanID string `json:"dialplan,omitempty" dynamodbav:"DialplanID"`
	Channel    string `json:"voicechannel" dynamodbav:"VoiceChannel"`
	Tenant     string `json:"orgi" dynamodbav:"Tenant"`

	// Denormalized for reporting.
	OrganID    string `json:"organid,omitempty" dynamodbav:"OrganID"`
	OrganName  string `json:"organ,omitempty" dynamodbav:"OrganName"`
	AgentID    string `json:"agent,omitempty" dynamodbav:"AgentID"`
	AgentName  string `json:"agentname,omitempty" dynamodbav:"AgentName"`
	ContactRef string `json:"contactsid,omitempty" dynamodbav:"ContactRef"`
	Country    string `json:"country,omitempty" dynamodbav:"Country"`
	Province   string `json:"province,omitempty" dynamodbav:"Province"`
	City       string `json:"city,omitempty" dynamodbav:"City"`
	ISP        string `json:"isp,omitempty" dynamodbav:"ISP"`
	AreaCode   string `json:"code,omitempty" dynamodbav:"AreaCode"`

	Recording     bool   `json:"record" dynamodbav:"Recording"`
	RecordingFile string `json:"recordingfile,omitempty" dynamodbav:"RecordingFile"`

	StartTime time.Time `json:"starttime" dynamodbav:"StartTime"`
	EndTime   time.Time `json:"endtime,omitempty" dynamodbav:"EndTime"`
	Duration  int       `json:"duration" dynamodbav:"Duration"` // seconds

	// Reporting partition keys, derived from StartTime.
	DateKey string `json:"datestr" dynamodbav:"DateKey"`
	HourKey string `json:"hourstr" dynamodbav:"HourKey"`

	UpdatedAt time.Time `json:"updatetime" dynamodbav:"UpdatedAt"`
}

// Closed reports whether the record has reached its terminal state.
func (r *ServiceRecord) Closed() bool {
	return r.Status == ServiceHangup
}
