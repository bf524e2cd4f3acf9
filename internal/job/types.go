package job

import "time"

type Status string

const (
	StatusPending   Status = "pending"
	StatusExecuting Status = "executing"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Terminal reports whether no further transition may leave the status.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Request is the client-submitted transfer payload. Amount, Receiver, and
// DepositSignature are validated at submission; the remaining fields are
// stored verbatim and only read back at execution time.
type Request struct {
	Amount           float64 `json:"amount"`
	Receiver         string  `json:"receiver"`
	DepositSignature string  `json:"depositSignature"`

	Mode               string `json:"mode,omitempty"`
	FromChain          string `json:"fromChain,omitempty"`
	ToChain            string `json:"toChain,omitempty"`
	FromToken          string `json:"fromToken,omitempty"`
	ToToken            string `json:"toToken,omitempty"`
	Refund             string `json:"refund,omitempty"`
	IdentityCommitment string `json:"identityCommitment,omitempty"`
	PublicKey          string `json:"publicKey,omitempty"`
	SolanaAddress      string `json:"solanaAddress,omitempty"`
	EVMAddress         string `json:"evmAddress,omitempty"`
}

type Job struct {
	ID      string  `json:"jobId"`
	Status  Status  `json:"status"`
	Request Request `json:"request"`

	Simulated    bool   `json:"simulated"`
	TxHash       string `json:"txHash,omitempty"`
	ExplorerURL  string `json:"explorerUrl,omitempty"`
	ErrorMessage string `json:"errorMessage,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Update carries a partial mutation. Nil fields are left untouched; the
// store refreshes UpdatedAt on every applied update.
type Update struct {
	Status       *Status
	Simulated    *bool
	TxHash       *string
	ExplorerURL  *string
	ErrorMessage *string
}
