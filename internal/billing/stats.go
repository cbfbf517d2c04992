package billing

import (
	"context"
	"math"
	"time"

	"github.com/mehdi-it48/medisync-lite/pkg/types"
)

// MonthLayout is the format of a statistics month
const MonthLayout = "2006-01"

// MonthlyStats are the key figures of one calendar month
type MonthlyStats struct {
	Month             string  `json:"month"`
	TotalPatients     int     `json:"total_patients"`
	AppointmentsMonth int     `json:"appointments_month"`
	RevenueMonth      float64 `json:"revenue_month"`
	AveragePerDay     int     `json:"average_per_day"`
}

// MonthlyStats computes the figures of month (YYYY-MM). Revenue sums the
// month's invoices except cancelled ones; the daily average divides the
// appointment count by 30 whatever the month's length.
func (s *Service) MonthlyStats(ctx context.Context, month string) (*MonthlyStats, error) {
	first, err := time.Parse(MonthLayout, month)
	if err != nil {
		return nil, types.NewValidationError(types.ErrCodeInvalidInput, "month must be YYYY-MM",
			map[string]interface{}{"month": month})
	}
	from := first.Format(types.DateLayout)
	to := first.AddDate(0, 1, -1).Format(types.DateLayout)

	patients, err := s.store.List(ctx, types.TablePatients, types.NewQuery())
	if err != nil {
		return nil, err
	}

	appointments, err := s.store.List(ctx, types.TableAppointments,
		types.NewQuery().Gte("date", from).Lte("date", to))
	if err != nil {
		return nil, err
	}

	invoices, err := s.store.List(ctx, types.TableInvoices,
		types.NewQuery().Gte("date", from).Lte("date", to).Neq("statut", string(types.InvoiceCancelled)))
	if err != nil {
		return nil, err
	}

	revenue := 0.0
	for _, row := range invoices {
		inv, err := decodeInvoice(row)
		if err != nil {
			return nil, err
		}
		revenue += inv.Montant
	}

	return &MonthlyStats{
		Month:             first.Format(MonthLayout),
		TotalPatients:     len(patients),
		AppointmentsMonth: len(appointments),
		RevenueMonth:      revenue,
		AveragePerDay:     int(math.Round(float64(len(appointments)) / 30)),
	}, nil
}
