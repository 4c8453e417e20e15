package reports

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"

	"github.com/angelmondragon/tillpoint-backend/pkg/db"
	"github.com/angelmondragon/tillpoint-backend/pkg/db/models"
	"github.com/angelmondragon/tillpoint-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/tillpoint-backend/pkg/errors"
	"github.com/angelmondragon/tillpoint-backend/pkg/migrate"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func seedSale(t *testing.T, repo *Repository, number string, soldAt time.Time, method enums.PaymentMethod, total string, voided bool, items ...models.SaleItem) {
	t.Helper()
	sale := models.Sale{
		SaleNumber:    number,
		SoldAt:        soldAt,
		Subtotal:      d(total),
		Tax:           d("0"),
		Total:         d(total),
		PaymentMethod: method,
		IsVoided:      voided,
		Items:         items,
	}
	require.NoError(t, repo.db.Create(&sale).Error)
}

func item(line int, qty, unit, cost, total string) models.SaleItem {
	return models.SaleItem{
		ProductID:   uuid.New(),
		LineNo:      line,
		ProductName: "item",
		Quantity:    d(qty),
		UnitPrice:   d(unit),
		CostPrice:   d(cost),
		LineTotal:   d(total),
	}
}

func TestSummaryOverSqlite(t *testing.T) {
	conn, err := db.Open(sqlite.Open("file:reports_" + uuid.NewString() + "?mode=memory&cache=shared"))
	require.NoError(t, err)
	require.NoError(t, migrate.AutoMigrate(conn))
	repo := NewRepository(conn)

	day := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	seedSale(t, repo, "S-1", day.Add(9*time.Hour), enums.PaymentMethodCash, "10.95", false,
		item(1, "5", "1.99", "1.20", "9.95"))
	seedSale(t, repo, "S-2", day.Add(10*time.Hour), enums.PaymentMethodCard, "5.00", false,
		item(1, "1", "3.00", "2.00", "3.00"), item(2, "2", "1.00", "0.50", "2.00"))
	seedSale(t, repo, "S-3", day.Add(11*time.Hour), enums.PaymentMethodCard, "100.00", true,
		item(1, "1", "100", "10", "100"))
	seedSale(t, repo, "S-4", day.Add(30*time.Hour), enums.PaymentMethodCash, "7.00", false,
		item(1, "1", "7", "1", "7"))

	svc, err := NewService(repo)
	require.NoError(t, err)
	sum, err := svc.Summary(context.Background(), day, day.Add(24*time.Hour))
	require.NoError(t, err)

	assert.Equal(t, int64(2), sum.Transactions)
	assert.Equal(t, "15.95", sum.TotalSales.StringFixed(2))
	// 15.95 / 2 = 7.975 rounds half-up
	assert.Equal(t, "7.98", sum.AverageSale.StringFixed(2))
	// (9.95 - 6.00) + (3.00 - 2.00) + (2.00 - 1.00)
	assert.Equal(t, "5.95", sum.EstimatedProfit.StringFixed(2))
	assert.True(t, sum.ItemsSold.Equal(d("8")))
	require.Len(t, sum.Sales, 2)
	assert.Equal(t, "S-1", sum.Sales[0].SaleNumber)
	assert.True(t, sum.Sales[1].ItemCount.Equal(d("3")))

	require.Len(t, sum.ByPaymentMethod, 2)
	assert.Equal(t, enums.PaymentMethodCard, sum.ByPaymentMethod[0].PaymentMethod)
	assert.Equal(t, "5.00", sum.ByPaymentMethod[0].Total.StringFixed(2))
	assert.Equal(t, int64(1), sum.ByPaymentMethod[1].Transactions)
}

type failingLoader struct{}

func (failingLoader) SalesBetween(context.Context, time.Time, time.Time) ([]models.Sale, error) {
	return nil, errors.New("db down")
}

func TestSummaryValidatesRangeAndWrapsErrors(t *testing.T) {
	svc, err := NewService(failingLoader{})
	require.NoError(t, err)
	now := time.Now()

	_, err = svc.Summary(context.Background(), now, now)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeValidation))
	_, err = svc.Summary(context.Background(), now.Add(-400*24*time.Hour), now)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeValidation))
	_, err = svc.Summary(context.Background(), now.Add(-time.Hour), now)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeDependency))

	empty, err := NewService(emptyLoader{})
	require.NoError(t, err)
	sum, err := empty.Summary(context.Background(), now.Add(-time.Hour), now)
	require.NoError(t, err)
	assert.True(t, sum.AverageSale.IsZero())
	assert.Empty(t, sum.Sales)

	_, err = NewService(nil)
	assert.Error(t, err)
}

type emptyLoader struct{}

func (emptyLoader) SalesBetween(context.Context, time.Time, time.Time) ([]models.Sale, error) {
	return nil, nil
}
