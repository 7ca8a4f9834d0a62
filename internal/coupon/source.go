package coupon

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/fjod/go_cart/cart-service/internal/domain"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

// Source loads the full coupon list from wherever the catalog lives.
type Source interface {
	Load(ctx context.Context) ([]domain.Coupon, error)
}

// Definition is the storage-neutral shape of a coupon, shared by the YAML
// file and the Mongo collection.
type Definition struct {
	Code            string     `yaml:"code" bson:"code"`
	DiscountType    string     `yaml:"discount_type" bson:"discount_type"`
	DiscountValue   Amount     `yaml:"discount_value" bson:"discount_value"`
	MinimumPurchase Amount     `yaml:"minimum_purchase" bson:"minimum_purchase"`
	Expiry          *time.Time `yaml:"expiry,omitempty" bson:"expiry,omitempty"`
}

func (d Definition) toCoupon() (domain.Coupon, error) {
	if Normalize(d.Code) == "" {
		return domain.Coupon{}, fmt.Errorf("coupon without code")
	}
	dt, err := domain.ParseDiscountType(d.DiscountType)
	if err != nil {
		return domain.Coupon{}, fmt.Errorf("coupon %s: %w", d.Code, err)
	}
	if d.DiscountValue.IsNegative() || d.MinimumPurchase.IsNegative() {
		return domain.Coupon{}, fmt.Errorf("coupon %s: negative amount", d.Code)
	}
	return domain.Coupon{
		Code:            Normalize(d.Code),
		DiscountType:    dt,
		DiscountValue:   d.DiscountValue.Decimal,
		MinimumPurchase: d.MinimumPurchase.Decimal,
		Expiry:          d.Expiry,
	}, nil
}

func convert(defs []Definition) ([]domain.Coupon, error) {
	out := make([]domain.Coupon, 0, len(defs))
	for _, d := range defs {
		c, err := d.toCoupon()
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

// FileSource reads a YAML document of the form `coupons: [...]`.
type FileSource struct {
	Path string
}

type fileDocument struct {
	Coupons []Definition `yaml:"coupons"`
}

func (f FileSource) Load(context.Context) ([]domain.Coupon, error) {
	data, err := os.ReadFile(f.Path)
	if err != nil {
		return nil, fmt.Errorf("read coupon file: %w", err)
	}
	return ParseYAML(data)
}

func ParseYAML(data []byte) ([]domain.Coupon, error) {
	var doc fileDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse coupon file: %w", err)
	}
	return convert(doc.Coupons)
}

// Refresh loads the source and replaces the catalog content.
func Refresh(ctx context.Context, catalog *StaticCatalog, source Source) error {
	coupons, err := source.Load(ctx)
	if err != nil {
		return err
	}
	catalog.Replace(coupons)
	return nil
}

// Watch refreshes the catalog every interval until ctx is done. A failed
// reload keeps the previous content.
func Watch(ctx context.Context, catalog *StaticCatalog, source Source, interval time.Duration, log zerolog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := Refresh(ctx, catalog, source); err != nil {
				log.Warn().Err(err).Msg("coupon catalog refresh failed")
				continue
			}
			log.Debug().Int("coupons", len(catalog.All())).Msg("coupon catalog refreshed")
		case <-ctx.Done():
			return
		}
	}
}
