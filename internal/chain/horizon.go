package chain

import (
	"context"
	"net/http"
	"strings"

	"github.com/stellar/go/clients/horizonclient"
	hProtocol "github.com/stellar/go/protocols/horizon"
	"github.com/stellar/go/txnbuild"
)

// Cursor values for Horizon streams.
const CursorNow = "now"

// Horizon is the subset of a Horizon client the account clients use.
// *horizonclient.Client satisfies it.
type Horizon interface {
	AccountDetail(request horizonclient.AccountRequest) (hProtocol.Account, error)
	SubmitTransaction(transaction *txnbuild.Transaction) (hProtocol.Transaction, error)
	SubmitTransactionXDR(transactionXdr string) (hProtocol.Transaction, error)
	StreamPayments(ctx context.Context, request horizonclient.OperationRequest, handler horizonclient.OperationHandler) error
}

// NewHorizon returns a Horizon client for nodeURL using httpClient.
func NewHorizon(nodeURL string, httpClient *http.Client) *horizonclient.Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &horizonclient.Client{
		HorizonURL: strings.TrimRight(nodeURL, "/") + "/",
		HTTP:       httpClient,
	}
}

var _ Horizon = (*horizonclient.Client)(nil)
