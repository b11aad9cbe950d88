package report

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"time"
)

// The built-in generators below exist so the server runs end to end
// out of the box. Their formatting is deliberately trivial; real
// deployments register their own generators at startup.

// AccountSummary renders a one-page CSV summary for an account
type AccountSummary struct{}

func (AccountSummary) Name() string { return "account-summary" }

func (AccountSummary) RequiredArgs() []string { return []string{"account_id", "period"} }

func (AccountSummary) Render(ctx context.Context, args map[string]interface{}, progress func(int)) ([]File, error) {
	accountID := fmt.Sprintf("%v", args["account_id"])
	period := fmt.Sprintf("%v", args["period"])

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	w.Write([]string{"account_id", "period", "generated_at"})
	w.Write([]string{accountID, period, time.Now().UTC().Format(time.RFC3339)})
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}

	if progress != nil {
		progress(90)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	return []File{{
		Name:        fmt.Sprintf("account-summary-%s.csv", period),
		ContentType: "text/csv",
		Data:        buf.Bytes(),
	}}, nil
}

// TransactionLog renders a CSV transaction listing plus a JSON
// manifest describing the run
type TransactionLog struct{}

func (TransactionLog) Name() string { return "transaction-log" }

func (TransactionLog) RequiredArgs() []string { return []string{"account_id", "from", "to"} }

func (TransactionLog) Render(ctx context.Context, args map[string]interface{}, progress func(int)) ([]File, error) {
	accountID := fmt.Sprintf("%v", args["account_id"])

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	w.Write([]string{"account_id", "from", "to"})
	w.Write([]string{accountID, fmt.Sprintf("%v", args["from"]), fmt.Sprintf("%v", args["to"])})
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}

	if progress != nil {
		progress(50)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	manifest, err := json.Marshal(map[string]interface{}{
		"report":       "transaction-log",
		"account_id":   accountID,
		"generated_at": time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return nil, err
	}

	if progress != nil {
		progress(95)
	}

	return []File{
		{Name: "transactions.csv", ContentType: "text/csv", Data: buf.Bytes()},
		{Name: "manifest.json", ContentType: "application/json", Data: manifest},
	}, nil
}

// RegisterBuiltins adds the built-in generators to a registry
func RegisterBuiltins(r *Registry) {
	r.Register(AccountSummary{})
	r.Register(TransactionLog{})
}
