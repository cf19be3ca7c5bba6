package entity

// Responses of the gateway server-to-server API (postservice, form=2).

type StatusQueryResponse struct {
	// Status 1 = query executed, 0 = rejected by the gateway
	Status  int                          `json:"status"`
	Message string                       `json:"msg"`
	Details map[string]TransactionDetail `json:"transaction_details"`
}

type TransactionDetail struct {
	PaymentId    string `json:"mihpayid"`
	TxnId        string `json:"txnid"`
	Amount       string `json:"amt"`
	Status       string `json:"status"`
	Unmapped     string `json:"unmappedstatus"`
	ErrorCode    string `json:"error_code"`
	ErrorMessage string `json:"error_Message"`
	Mode         string `json:"mode"`
	AddedOn      string `json:"addedon"`
}

type RefundResponse struct {
	Status    int    `json:"status"`
	Message   string `json:"msg"`
	RequestId string `json:"request_id"`
	ErrorCode int    `json:"error_code"`
}

// GatewayStatus is the status of one transaction as reported by the status query.
type GatewayStatus struct {
	TransactionId string
	PaymentId     string
	Amount        string
	Status        string
	Message       string
}

// RefundResult is the gateway's answer to a refund request.
type RefundResult struct {
	Accepted  bool
	RequestId string
	Message   string
}
