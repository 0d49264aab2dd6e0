package fieldsync

// PubSubPushEnvelope is the wrapper Google Pub/Sub push delivery wraps the
// message in.
type PubSubPushEnvelope struct {
	Message struct {
		Data        []byte            `json:"data"`
		MessageId   string            `json:"messageId"`
		Attributes  map[string]string `json:"attributes"`
		PublishTime string            `json:"publishTime"`
	} `json:"message"`
	Subscription string `json:"subscription"`
}

// TriggerSyncRequest is the optional body of the manual trigger endpoints.
type TriggerSyncRequest struct {
	WindowHours int `json:"window_hours"`
}

// SyncLogResponse is the history endpoint row shape.
type SyncLogResponse struct {
	ID               uint     `json:"id"`
	SyncType         string   `json:"sync_type"`
	Status           string   `json:"status"`
	TriggeredBy      string   `json:"triggered_by"`
	StartedAt        string   `json:"started_at"`
	FinishedAt       *string  `json:"finished_at"`
	RecordsProcessed int      `json:"records_processed"`
	RecordsCreated   int      `json:"records_created"`
	RecordsUpdated   int      `json:"records_updated"`
	RecordsClosed    int      `json:"records_closed"`
	Errors           []string `json:"errors"`
}
