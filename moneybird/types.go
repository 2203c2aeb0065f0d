package moneybird

type TriggerSyncRequest struct {
	Full bool `json:"full"`
}

type StatusResponse struct {
	Configured bool                 `json:"configured"`
	LastRun    *SyncRunResponse     `json:"lastRun"`
	Cursors    []SyncCursorResponse `json:"cursors"`
}

type SyncCursorResponse struct {
	EntityType string  `json:"entityType"`
	Cursor     string  `json:"cursor"`
	SyncedAt   *string `json:"syncedAt"`
}

type SyncHistoryResponse struct {
	Items []SyncRunResponse `json:"items"`
}

type SyncRunResponse struct {
	ID            uint    `json:"id"`
	Status        string  `json:"status"`
	Full          bool    `json:"full"`
	StartedAt     *string `json:"startedAt"`
	FinishedAt    *string `json:"finishedAt"`
	DurationMs    int64   `json:"durationMs"`
	RecordsSynced int     `json:"recordsSynced"`
	ErrorCount    int     `json:"errorCount"`
	TriggeredBy   string  `json:"triggeredBy"`
}

type SyncRunDetailResponse struct {
	SyncRunResponse
	Errors []SyncErrorResponse `json:"errors"`
}

type SyncErrorResponse struct {
	ID         uint   `json:"id"`
	EntityType string `json:"entityType"`
	RemoteId   string `json:"remoteId"`
	ErrorCode  string `json:"errorCode"`
	Message    string `json:"message"`
	Retryable  bool   `json:"retryable"`
}

type PubSubPushEnvelope struct {
	Message struct {
		Data []byte `json:"data"`
		ID   string `json:"messageId"`
	} `json:"message"`
	Subscription string `json:"subscription"`
}

type SyncPubSubPayload struct {
	RunId       uint   `json:"run_id"`
	Full        bool   `json:"full"`
	TriggeredBy string `json:"triggered_by"`
	ParentRunId *uint  `json:"parent_run_id"`
}
