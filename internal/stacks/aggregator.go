package stacks

import (
	"context"
	"fmt"
	"strings"

	"github.com/r0zar/charisma-sub000/internal/domain"
)

// AggregatorClient fetches token summaries from the metadata/price
// aggregator. With basicOnly set it hits the degraded metadata-only
// endpoint, which carries no pricing.
type AggregatorClient struct {
	client    *Client
	basicOnly bool
}

// NewAggregatorClient creates an aggregator client rooted at baseURL.
func NewAggregatorClient(baseURL string, opts ...ClientOption) *AggregatorClient {
	return &AggregatorClient{client: NewClient(baseURL, opts...)}
}

// NewBasicMetadataClient creates a client for the degraded basic-metadata
// fallback source.
func NewBasicMetadataClient(baseURL string, opts ...ClientOption) *AggregatorClient {
	return &AggregatorClient{client: NewClient(baseURL, opts...), basicOnly: true}
}

// ListTokens fetches the token list and converts it into domain records.
func (a *AggregatorClient) ListTokens(ctx context.Context) ([]*domain.TokenRecord, error) {
	path := "/api/v1/tokens"
	if a.basicOnly {
		path = "/api/v1/metadata"
	}

	var summaries []tokenSummary
	if err := a.client.getJSON(ctx, a.client.baseURL+path, &summaries); err != nil {
		return nil, fmt.Errorf("list tokens: %w", err)
	}

	out := make([]*domain.TokenRecord, 0, len(summaries))
	for _, s := range summaries {
		if s.ContractID == "" {
			continue
		}
		out = append(out, &domain.TokenRecord{
			ContractID: s.ContractID,
			Name:       s.Name,
			Symbol:     s.Symbol,
			Decimals:   s.Decimals,
			Type:       parseTokenType(s.Type),
			Base:       s.Base,
			Price:      s.Price,
			Change1h:   s.Change1h,
			Change24h:  s.Change24h,
			Change7d:   s.Change7d,
			MarketCap:  s.MarketCap,
			Verified:   s.Verified,
		})
	}
	return out, nil
}

func parseTokenType(t string) domain.TokenType {
	switch strings.ToUpper(t) {
	case "SUBNET":
		return domain.TypeSubnet
	case "LP":
		return domain.TypeLP
	default:
		return domain.TypeSIP10
	}
}
