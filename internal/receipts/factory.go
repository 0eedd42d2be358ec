package receipts

import (
	"fmt"

	"event-bot/internal/config"
	"event-bot/internal/receipts/local"
)

func NewStore(cfg config.Config) (Store, error) {
	switch cfg.ReceiptStorage {
	case "local":
		return local.New(cfg.ReceiptsDir, cfg.MaxReceiptBytes)
	default:
		return nil, fmt.Errorf("unknown receipt storage: %s", cfg.ReceiptStorage)
	}
}
