package privacy

import (
	"math"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/inferloop/gsd/pkg/errors"
)

// BudgetTransaction records one mechanism invocation.
type BudgetTransaction struct {
	ID        string                 `json:"id"`
	Timestamp time.Time              `json:"timestamp"`
	RhoUsed   float64                `json:"rho_used"`
	Mechanism string                 `json:"mechanism"`
	Purpose   string                 `json:"purpose"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

// CompositionRule defines how privacy guarantees compose
type CompositionRule interface {
	Compose(transactions []BudgetTransaction) float64
	GetName() string
	GetDescription() string
}

// ZCDPComposition adds rho across mechanisms.
type ZCDPComposition struct{}

func (zc *ZCDPComposition) Compose(transactions []BudgetTransaction) float64 {
	var total float64
	for _, tx := range transactions {
		total += tx.RhoUsed
	}
	return total
}

func (zc *ZCDPComposition) GetName() string {
	return "zcdp"
}

func (zc *ZCDPComposition) GetDescription() string {
	return "zCDP composition: rho_total = sum of rho_i"
}

// BudgetStatus summarizes the accountant.
type BudgetStatus struct {
	Budget           float64 `json:"budget"`
	ConsumedRho      float64 `json:"consumed_rho"`
	RemainingRho     float64 `json:"remaining_rho"`
	TransactionCount int     `json:"transaction_count"`
}

// Accountant tracks zCDP spending. A non-positive budget means no cap.
type Accountant struct {
	mu              sync.RWMutex
	budget          float64
	transactions    []BudgetTransaction
	compositionRule CompositionRule
}

// budgetSlack absorbs rounding when a budget is split into equal parts and
// spent piece by piece.
const budgetSlack = 1e-9

// NewAccountant creates an accountant capped at budget rho.
func NewAccountant(budget float64) *Accountant {
	return &Accountant{
		budget:          budget,
		compositionRule: &ZCDPComposition{},
	}
}

// Spend records rho for a mechanism. It fails without recording when the
// cap would be exceeded.
func (a *Accountant) Spend(rho float64, mechanism, purpose string, metadata map[string]interface{}) (BudgetTransaction, error) {
	if rho <= 0 || math.IsNaN(rho) {
		return BudgetTransaction{}, errors.ErrInvalidBudget.Detailf("rho must be positive, got %g", rho)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	spent := a.compositionRule.Compose(a.transactions)
	if a.budget > 0 && spent+rho > a.budget*(1+budgetSlack) {
		return BudgetTransaction{}, errors.ErrPrivacyBudgetExceeded.
			Detailf("requested rho %g with %g of %g spent", rho, spent, a.budget).
			WithContext("mechanism", mechanism)
	}

	tx := BudgetTransaction{
		ID:        uuid.New().String(),
		Timestamp: time.Now(),
		RhoUsed:   rho,
		Mechanism: mechanism,
		Purpose:   purpose,
		Metadata:  metadata,
	}
	a.transactions = append(a.transactions, tx)
	return tx, nil
}

// Spent returns the composed rho.
func (a *Accountant) Spent() float64 {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.compositionRule.Compose(a.transactions)
}

// Remaining returns the unspent budget, +Inf when uncapped.
func (a *Accountant) Remaining() float64 {
	if a.budget <= 0 {
		return math.Inf(1)
	}
	return math.Max(a.budget-a.Spent(), 0)
}

// Epsilon reports the (epsilon, delta)-DP guarantee of what has been spent.
func (a *Accountant) Epsilon(delta float64) (float64, error) {
	return CDPEps(a.Spent(), delta)
}

// Transactions returns a copy of the transaction log.
func (a *Accountant) Transactions() []BudgetTransaction {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]BudgetTransaction, len(a.transactions))
	copy(out, a.transactions)
	return out
}

// Status returns a snapshot of the budget.
func (a *Accountant) Status() BudgetStatus {
	a.mu.RLock()
	defer a.mu.RUnlock()
	spent := a.compositionRule.Compose(a.transactions)
	remaining := math.Inf(1)
	if a.budget > 0 {
		remaining = math.Max(a.budget-spent, 0)
	}
	return BudgetStatus{
		Budget:           a.budget,
		ConsumedRho:      spent,
		RemainingRho:     remaining,
		TransactionCount: len(a.transactions),
	}
}
