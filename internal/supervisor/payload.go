package supervisor

// Notification names published by the supervisor.
const (
	EventStatusUpdate    = "instance_status_update"
	EventQRCode          = "qr_code"
	EventProfileInfo     = "profile_info"
	EventInstanceCreated = "instance_created"
	EventCreationError   = "instance_creation_error"
	EventInstanceDeleted = "instance_deleted"
)

// StatusPayload carries the stored status value after a transition.
type StatusPayload struct {
	InstanceID string `json:"instanceId"`
	Status     string `json:"status"`
	Connection string `json:"connection,omitempty"`
	Reason     string `json:"reason,omitempty"`
	QRDataURL  string `json:"qrDataUrl,omitempty"`
}

type QRPayload struct {
	InstanceID string `json:"instanceId"`
	QRDataURL  string `json:"qrDataUrl"`
}

type ProfilePayload struct {
	InstanceID        string `json:"instanceId"`
	UserID            string `json:"userId"`
	UserName          string `json:"userName"`
	ProfilePictureURL string `json:"profilePictureUrl"`
}

type InstancePayload struct {
	InstanceID string `json:"instanceId"`
}

type CreationErrorPayload struct {
	InstanceID string `json:"instanceId"`
	Error      string `json:"error"`
}
