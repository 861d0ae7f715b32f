package portfoliostore

import (
	"time"

	"github.com/uptrace/bun"

	"github.com/tokenfolio/portfolio-api/pkg/portfolio"
)

// UserDao is a data access object that maps directly to the 'users' table in PostgreSQL.
type UserDao struct {
	bun.BaseModel `bun:"table:users,alias:u"`
	ID            string    `bun:"id,pk,type:varchar(128)"`
	Username      string    `bun:"username,notnull,type:varchar(100)"`
	CreatedAt     time.Time `bun:"created_at,nullzero,default:current_timestamp"`
}

func toUser(dao *UserDao) *portfolio.User {
	return &portfolio.User{
		ID:        dao.ID,
		Username:  dao.Username,
		CreatedAt: dao.CreatedAt,
	}
}

// PortfolioDao is a data access object that maps directly to the 'portfolios' table in PostgreSQL.
type PortfolioDao struct {
	bun.BaseModel `bun:"table:portfolios,alias:p"`
	ID            string    `bun:"id,pk,type:varchar(36)"`
	UserID        string    `bun:"user_id,notnull,type:varchar(128)"`
	Name          string    `bun:"name,notnull,type:varchar(100)"`
	Description   *string   `bun:"description,type:varchar(500)"`
	IsDefault     bool      `bun:"is_default,notnull,default:false"`
	CreatedAt     time.Time `bun:"created_at,nullzero,default:current_timestamp"`
	UpdatedAt     time.Time `bun:"updated_at,nullzero,default:current_timestamp"`
}

func toPortfolioDao(p *portfolio.Portfolio) *PortfolioDao {
	dao := &PortfolioDao{
		ID:        p.ID,
		UserID:    p.UserID,
		Name:      p.Name,
		IsDefault: p.IsDefault,
		CreatedAt: p.CreatedAt,
		UpdatedAt: p.UpdatedAt,
	}
	if p.Description != "" {
		dao.Description = &p.Description
	}
	return dao
}

func toPortfolio(dao *PortfolioDao) *portfolio.Portfolio {
	p := &portfolio.Portfolio{
		ID:        dao.ID,
		UserID:    dao.UserID,
		Name:      dao.Name,
		IsDefault: dao.IsDefault,
		CreatedAt: dao.CreatedAt,
		UpdatedAt: dao.UpdatedAt,
	}
	if dao.Description != nil {
		p.Description = *dao.Description
	}
	return p
}

// AssetDao is a data access object that maps directly to the 'assets' table in PostgreSQL.
// Balance and AverageCost are numeric(38,18) columns carried as decimal strings.
type AssetDao struct {
	bun.BaseModel `bun:"table:assets,alias:a"`
	ID            string    `bun:"id,pk,type:varchar(36)"`
	PortfolioID   string    `bun:"portfolio_id,notnull,type:varchar(36)"`
	TokenAddress  string    `bun:"token_address,notnull,type:varchar(42)"`
	TokenSymbol   string    `bun:"token_symbol,notnull,type:varchar(20)"`
	TokenName     string    `bun:"token_name,notnull,type:varchar(100)"`
	TokenDecimals int       `bun:"token_decimals,notnull,default:18"`
	ChainID       int64     `bun:"chain_id,notnull"`
	Balance       string    `bun:"balance,notnull,type:numeric(38,18)"`
	AverageCost   *string   `bun:"average_cost,nullzero,type:numeric(38,18)"`
	CreatedAt     time.Time `bun:"created_at,nullzero,default:current_timestamp"`
	UpdatedAt     time.Time `bun:"updated_at,nullzero,default:current_timestamp"`
}

func toAssetDao(a *portfolio.Asset) *AssetDao {
	dao := &AssetDao{
		ID:            a.ID,
		PortfolioID:   a.PortfolioID,
		TokenAddress:  a.TokenAddress,
		TokenSymbol:   a.TokenSymbol,
		TokenName:     a.TokenName,
		TokenDecimals: a.TokenDecimals,
		ChainID:       a.ChainID,
		Balance:       a.Balance,
		CreatedAt:     a.CreatedAt,
		UpdatedAt:     a.UpdatedAt,
	}
	if a.AverageCost != "" {
		dao.AverageCost = &a.AverageCost
	}
	return dao
}

func toAsset(dao *AssetDao) *portfolio.Asset {
	a := &portfolio.Asset{
		ID:            dao.ID,
		PortfolioID:   dao.PortfolioID,
		TokenAddress:  dao.TokenAddress,
		TokenSymbol:   dao.TokenSymbol,
		TokenName:     dao.TokenName,
		TokenDecimals: dao.TokenDecimals,
		ChainID:       dao.ChainID,
		Balance:       dao.Balance,
		CreatedAt:     dao.CreatedAt,
		UpdatedAt:     dao.UpdatedAt,
	}
	if dao.AverageCost != nil {
		a.AverageCost = *dao.AverageCost
	}
	return a
}

// TransactionDao is a data access object that maps directly to the 'transactions' table in PostgreSQL.
// Rows are append-only; there is no update path.
type TransactionDao struct {
	bun.BaseModel `bun:"table:transactions,alias:t"`
	ID            string    `bun:"id,pk,type:varchar(36)"`
	UserID        string    `bun:"user_id,notnull,type:varchar(128)"`
	PortfolioID   string    `bun:"portfolio_id,notnull,type:varchar(36)"`
	TxHash        string    `bun:"tx_hash,notnull,type:varchar(66)"`
	Type          string    `bun:"tx_type,notnull,type:varchar(16)"`
	TokenAddress  string    `bun:"token_address,notnull,type:varchar(42)"`
	TokenSymbol   string    `bun:"token_symbol,notnull,type:varchar(20)"`
	Amount        string    `bun:"amount,notnull,type:numeric(38,18)"`
	FromAddress   string    `bun:"from_address,notnull,type:varchar(42)"`
	ToAddress     string    `bun:"to_address,notnull,type:varchar(42)"`
	ChainID       int64     `bun:"chain_id,notnull"`
	BlockNumber   int64     `bun:"block_number,notnull,default:0"`
	GasUsed       *string   `bun:"gas_used,nullzero,type:numeric(38,0)"`
	GasPrice      *string   `bun:"gas_price,nullzero,type:numeric(38,0)"`
	Timestamp     time.Time `bun:"ts,notnull"`
	CreatedAt     time.Time `bun:"created_at,nullzero,default:current_timestamp"`
}

func toTransactionDao(tx *portfolio.Transaction) *TransactionDao {
	dao := &TransactionDao{
		ID:           tx.ID,
		UserID:       tx.UserID,
		PortfolioID:  tx.PortfolioID,
		TxHash:       tx.TxHash,
		Type:         string(tx.Type),
		TokenAddress: tx.TokenAddress,
		TokenSymbol:  tx.TokenSymbol,
		Amount:       tx.Amount,
		FromAddress:  tx.FromAddress,
		ToAddress:    tx.ToAddress,
		ChainID:      tx.ChainID,
		BlockNumber:  tx.BlockNumber,
		Timestamp:    tx.Timestamp,
		CreatedAt:    tx.CreatedAt,
	}
	if tx.GasUsed != "" {
		dao.GasUsed = &tx.GasUsed
	}
	if tx.GasPrice != "" {
		dao.GasPrice = &tx.GasPrice
	}
	return dao
}

func toTransaction(dao *TransactionDao) *portfolio.Transaction {
	tx := &portfolio.Transaction{
		ID:           dao.ID,
		UserID:       dao.UserID,
		PortfolioID:  dao.PortfolioID,
		TxHash:       dao.TxHash,
		Type:         portfolio.TransactionType(dao.Type),
		TokenAddress: dao.TokenAddress,
		TokenSymbol:  dao.TokenSymbol,
		Amount:       dao.Amount,
		FromAddress:  dao.FromAddress,
		ToAddress:    dao.ToAddress,
		ChainID:      dao.ChainID,
		BlockNumber:  dao.BlockNumber,
		Timestamp:    dao.Timestamp,
		CreatedAt:    dao.CreatedAt,
	}
	if dao.GasUsed != nil {
		tx.GasUsed = *dao.GasUsed
	}
	if dao.GasPrice != nil {
		tx.GasPrice = *dao.GasPrice
	}
	return tx
}

// WatchlistItemDao is a data access object that maps directly to the 'watchlist_items' table in PostgreSQL.
type WatchlistItemDao struct {
	bun.BaseModel  `bun:"table:watchlist_items,alias:w"`
	ID             string    `bun:"id,pk,type:varchar(36)"`
	UserID         string    `bun:"user_id,notnull,type:varchar(128)"`
	TokenAddress   string    `bun:"token_address,notnull,type:varchar(42)"`
	TokenSymbol    string    `bun:"token_symbol,notnull,type:varchar(20)"`
	TokenName      string    `bun:"token_name,notnull,type:varchar(100)"`
	ChainID        int64     `bun:"chain_id,notnull"`
	PriceAlertHigh *string   `bun:"price_alert_high,nullzero,type:numeric(38,18)"`
	PriceAlertLow  *string   `bun:"price_alert_low,nullzero,type:numeric(38,18)"`
	Notes          *string   `bun:"notes,type:varchar(1000)"`
	CreatedAt      time.Time `bun:"created_at,nullzero,default:current_timestamp"`
	UpdatedAt      time.Time `bun:"updated_at,nullzero,default:current_timestamp"`
}

func toWatchlistItemDao(w *portfolio.WatchlistItem) *WatchlistItemDao {
	dao := &WatchlistItemDao{
		ID:           w.ID,
		UserID:       w.UserID,
		TokenAddress: w.TokenAddress,
		TokenSymbol:  w.TokenSymbol,
		TokenName:    w.TokenName,
		ChainID:      w.ChainID,
		CreatedAt:    w.CreatedAt,
		UpdatedAt:    w.UpdatedAt,
	}
	if w.PriceAlertHigh != "" {
		dao.PriceAlertHigh = &w.PriceAlertHigh
	}
	if w.PriceAlertLow != "" {
		dao.PriceAlertLow = &w.PriceAlertLow
	}
	if w.Notes != "" {
		dao.Notes = &w.Notes
	}
	return dao
}

func toWatchlistItem(dao *WatchlistItemDao) *portfolio.WatchlistItem {
	w := &portfolio.WatchlistItem{
		ID:           dao.ID,
		UserID:       dao.UserID,
		TokenAddress: dao.TokenAddress,
		TokenSymbol:  dao.TokenSymbol,
		TokenName:    dao.TokenName,
		ChainID:      dao.ChainID,
		CreatedAt:    dao.CreatedAt,
		UpdatedAt:    dao.UpdatedAt,
	}
	if dao.PriceAlertHigh != nil {
		w.PriceAlertHigh = *dao.PriceAlertHigh
	}
	if dao.PriceAlertLow != nil {
		w.PriceAlertLow = *dao.PriceAlertLow
	}
	if dao.Notes != nil {
		w.Notes = *dao.Notes
	}
	return w
}

// SnapshotDao is a data access object that maps directly to the 'daily_snapshots' table in PostgreSQL.
// (portfolio_id, snapshot_date) is the natural key; a same-day write replaces
// the existing row.
type SnapshotDao struct {
	bun.BaseModel    `bun:"table:daily_snapshots,alias:s"`
	PortfolioID      string    `bun:"portfolio_id,pk,type:varchar(36)"`
	SnapshotDate     time.Time `bun:"snapshot_date,pk,type:date"`
	TotalValue       string    `bun:"total_value,notnull,type:numeric(38,18)"`
	Change           string    `bun:"change,notnull,type:numeric(38,18)"`
	ChangePercentage float64   `bun:"change_percentage,notnull,default:0"`
	CreatedAt        time.Time `bun:"created_at,nullzero,default:current_timestamp"`
}

func toSnapshotDao(s *portfolio.Snapshot) *SnapshotDao {
	return &SnapshotDao{
		PortfolioID:      s.PortfolioID,
		SnapshotDate:     s.Date,
		TotalValue:       s.TotalValue,
		Change:           s.Change,
		ChangePercentage: s.ChangePercentage,
		CreatedAt:        s.CreatedAt,
	}
}

func toSnapshot(dao *SnapshotDao) *portfolio.Snapshot {
	return &portfolio.Snapshot{
		PortfolioID:      dao.PortfolioID,
		Date:             dao.SnapshotDate,
		TotalValue:       dao.TotalValue,
		Change:           dao.Change,
		ChangePercentage: dao.ChangePercentage,
		CreatedAt:        dao.CreatedAt,
	}
}
