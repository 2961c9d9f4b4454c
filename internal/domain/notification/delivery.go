// internal/domain/notification/delivery.go
package notification

// DeliveryStatus is the outcome of one digest in a dispatch batch.
type DeliveryStatus string

const (
	StatusSent        DeliveryStatus = "SENT"
	StatusBuildFailed DeliveryStatus = "BUILD_FAILED"
	StatusSendFailed  DeliveryStatus = "SEND_FAILED"
)

// Delivery records what happened to one subscriber's digest.
type Delivery struct {
	Email   string
	Records int
	Status  DeliveryStatus
	Err     error
}

// Report summarizes a dispatch batch.
type Report struct {
	NewRecords  int
	Subscribers int
	Excluded    int // subscribers dropped for malformed or empty preferences
	Deliveries  []Delivery
}

// Sent counts deliveries that reached the gateway successfully.
func (r *Report) Sent() int {
	n := 0
	for _, d := range r.Deliveries {
		if d.Status == StatusSent {
			n++
		}
	}
	return n
}

// Failed counts deliveries that were attempted and did not go out.
func (r *Report) Failed() int {
	return len(r.Deliveries) - r.Sent()
}
