package cmd

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/bnema/pocketfi-claimer/internal/domain"
)

// resolveNewAccountID returns raw, or the lowest free numeric id when raw is
// empty or "0".
func resolveNewAccountID(ctx context.Context, app *app, raw string) (domain.AccountID, error) {
	requested := strings.TrimSpace(raw)
	if requested == "" || requested == "0" {
		return nextAvailableAccountID(ctx, app)
	}

	if n, err := strconv.Atoi(requested); err == nil && n <= 0 {
		return "", fmt.Errorf("account id must be a positive number, a name, or empty/0 for auto assignment")
	}

	return domain.AccountID(requested), nil
}

func nextAvailableAccountID(ctx context.Context, app *app) (domain.AccountID, error) {
	accounts, err := app.service.ListAccounts(ctx)
	if err != nil {
		return "", fmt.Errorf("list accounts for auto assignment: %w", err)
	}

	used := make(map[int]struct{}, len(accounts))
	for _, account := range accounts {
		n, err := strconv.Atoi(string(account.ID))
		if err != nil || n <= 0 {
			continue
		}
		used[n] = struct{}{}
	}

	for i := 1; ; i++ {
		if _, ok := used[i]; !ok {
			return domain.AccountID(strconv.Itoa(i)), nil
		}
	}
}

func parseAccountIDs(raw []string) []domain.AccountID {
	ids := make([]domain.AccountID, 0, len(raw))
	for _, value := range raw {
		for _, part := range strings.Split(value, ",") {
			if part = strings.TrimSpace(part); part != "" {
				ids = append(ids, domain.AccountID(part))
			}
		}
	}
	return ids
}
