package settlement

import "time"

// runRequest is shared by preview and process. Preview reads it from query
// parameters, process from the JSON body.
type runRequest struct {
	Period string  `json:"period" validate:"required,len=7"`
	Rate   float64 `json:"rate" validate:"required,gt=0"`
}

// breakdownResponse is one result row. Preview rows carry the gross under
// "gross"; committed rows carry it under "totalAmount", so exactly one of the
// two pointers is set.
type breakdownResponse struct {
	FarmerID       int64         `json:"farmerId"`
	TotalQuantity  float64       `json:"totalQty"`
	RatePerLiter   float64       `json:"ratePerLiter"`
	Gross          *float64      `json:"gross,omitempty"`
	TotalAmount    *float64      `json:"totalAmount,omitempty"`
	Accounts       []AccountLine `json:"accounts"`
	Loans          []LoanLine    `json:"loans"`
	LoanDeductions float64       `json:"totalLoanDeductions"`
	Contributions  float64       `json:"totalContributions"`
	NetAmount      float64       `json:"netAmount"`
	PayoutID       int64         `json:"payoutId,omitempty"`
}

type failureResponse struct {
	FarmerID int64  `json:"farmerId"`
	Reason   string `json:"reason"`
}

type runResponse struct {
	RunID      string              `json:"runId"`
	Period     string              `json:"period"`
	Rate       float64             `json:"rate"`
	Mode       string              `json:"mode"`
	Results    []breakdownResponse `json:"results"`
	Skipped    []int64             `json:"skipped,omitempty"`
	Failed     []failureResponse   `json:"failed,omitempty"`
	DurationMS int64               `json:"durationMs"`
}

type runHistoryResponse struct {
	RunID      string    `json:"runId"`
	Period     string    `json:"period"`
	Mode       string    `json:"mode"`
	Rate       float64   `json:"rate"`
	Committed  int       `json:"committed"`
	Skipped    int       `json:"skipped"`
	Failed     int       `json:"failed"`
	StartedAt  time.Time `json:"startedAt"`
	FinishedAt time.Time `json:"finishedAt"`
}

type payoutResponse struct {
	ID             int64       `json:"id"`
	FarmerID       int64       `json:"farmerId"`
	Period         string      `json:"period"`
	TotalQuantity  float64     `json:"totalQty"`
	GrossAmount    float64     `json:"totalAmount"`
	LoanDeductions float64     `json:"totalLoanDeductions"`
	Contributions  float64     `json:"totalContributions"`
	NetAmount      float64     `json:"netAmount"`
	Lines          PayoutLines `json:"lines"`
	CreatedAt      time.Time   `json:"createdAt"`
}

func toBreakdownResponse(b Breakdown, payoutID int64, mode RunMode) breakdownResponse {
	gross := b.Gross
	resp := breakdownResponse{
		FarmerID:       b.FarmerID,
		TotalQuantity:  b.TotalQuantity,
		RatePerLiter:   b.RatePerLiter,
		Accounts:       b.AccountLines,
		Loans:          b.LoanLines,
		LoanDeductions: b.TotalLoanDeductions,
		Contributions:  b.TotalContributions,
		NetAmount:      b.NetAmount,
		PayoutID:       payoutID,
	}
	if mode == ModeCommit {
		resp.TotalAmount = &gross
	} else {
		resp.Gross = &gross
	}
	if resp.Accounts == nil {
		resp.Accounts = []AccountLine{}
	}
	if resp.Loans == nil {
		resp.Loans = []LoanLine{}
	}
	return resp
}

func toRunResponse(report *Report) runResponse {
	resp := runResponse{
		RunID:      report.RunID,
		Period:     report.Period.String(),
		Rate:       report.Rate,
		Mode:       string(report.Mode),
		Results:    []breakdownResponse{},
		DurationMS: report.Duration.Milliseconds(),
	}
	for _, b := range report.Previewed {
		resp.Results = append(resp.Results, toBreakdownResponse(b, 0, ModePreview))
	}
	for _, c := range report.Committed {
		resp.Results = append(resp.Results, toBreakdownResponse(c.Breakdown, c.PayoutID, ModeCommit))
	}
	resp.Skipped = report.Skipped
	for _, f := range report.Failed {
		resp.Failed = append(resp.Failed, failureResponse{FarmerID: f.FarmerID, Reason: f.Reason})
	}
	return resp
}

func toPayoutResponse(p Payout) payoutResponse {
	resp := payoutResponse{
		ID:             p.ID,
		FarmerID:       p.FarmerID,
		Period:         p.Period.String(),
		TotalQuantity:  p.TotalQuantity,
		GrossAmount:    p.GrossAmount,
		LoanDeductions: p.LoanDeductions,
		Contributions:  p.Contributions,
		NetAmount:      p.NetAmount,
		Lines:          p.Lines,
		CreatedAt:      p.CreatedAt,
	}
	if resp.Lines.Accounts == nil {
		resp.Lines.Accounts = []AccountLine{}
	}
	if resp.Lines.Loans == nil {
		resp.Lines.Loans = []LoanLine{}
	}
	return resp
}
