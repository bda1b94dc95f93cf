package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/camisetas/internal/domain"
)

const (
	productColumns = `id, nome, tamanho, tipo, preco, imagem, created_at, updated_at`
	couponColumns  = `id, codigo, desconto, ativo, created_at, updated_at`
)

type productRepository struct {
	db *sql.DB
}

// NewProductRepository создаёт PostgreSQL-реализацию каталога футболок.
func NewProductRepository(store *Store) domain.ProductRepository {
	return &productRepository{db: store.DB()}
}

func (r *productRepository) Create(ctx context.Context, product domain.Product) (domain.Product, error) {
	if err := product.Validate(); err != nil {
		return domain.Product{}, err
	}
	now := time.Now().UTC()
	product.ID = uuid.NewString()
	product.CreatedAt = now
	product.UpdatedAt = now

	ctx, cancel := withTimeout(ctx)
	defer cancel()

	if _, err := r.db.ExecContext(ctx, `
		INSERT INTO camisetas (`+productColumns+`) VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`,
		product.ID, product.Name, product.Size, string(product.Type), money(product.Price),
		product.Image, product.CreatedAt, product.UpdatedAt,
	); err != nil {
		return domain.Product{}, persistenceErr("insert product", err)
	}
	return product, nil
}

func (r *productRepository) Get(ctx context.Context, id string) (domain.Product, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	product, err := scanProduct(r.db.QueryRowContext(ctx, `SELECT `+productColumns+` FROM camisetas WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Product{}, domain.ErrProductNotFound
		}
		return domain.Product{}, persistenceErr("select product", err)
	}
	return product, nil
}

func (r *productRepository) List(ctx context.Context) ([]domain.Product, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, `SELECT `+productColumns+` FROM camisetas ORDER BY created_at, id`)
	if err != nil {
		return nil, persistenceErr("list products", err)
	}
	defer rows.Close()

	products := make([]domain.Product, 0)
	for rows.Next() {
		product, err := scanProduct(rows)
		if err != nil {
			return nil, persistenceErr("scan product", err)
		}
		products = append(products, product)
	}
	if err := rows.Err(); err != nil {
		return nil, persistenceErr("iterate products", err)
	}
	return products, nil
}

func (r *productRepository) Update(ctx context.Context, product domain.Product) (domain.Product, error) {
	if err := product.Validate(); err != nil {
		return domain.Product{}, err
	}

	ctx, cancel := withTimeout(ctx)
	defer cancel()

	updated, err := scanProduct(r.db.QueryRowContext(ctx, `
		UPDATE camisetas
		SET nome = $2, tamanho = $3, tipo = $4, preco = $5, imagem = $6, updated_at = $7
		WHERE id = $1
		RETURNING `+productColumns,
		product.ID, product.Name, product.Size, string(product.Type), money(product.Price),
		product.Image, time.Now().UTC(),
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Product{}, domain.ErrProductNotFound
		}
		return domain.Product{}, persistenceErr("update product", err)
	}
	return updated, nil
}

func (r *productRepository) Delete(ctx context.Context, id string) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	return deleteByID(ctx, r.db, `DELETE FROM camisetas WHERE id = $1`, id, domain.ErrProductNotFound)
}

func scanProduct(row rowScanner) (domain.Product, error) {
	var (
		product domain.Product
		kind    string
		price   decimal.Decimal
	)
	if err := row.Scan(
		&product.ID, &product.Name, &product.Size, &kind, &price,
		&product.Image, &product.CreatedAt, &product.UpdatedAt,
	); err != nil {
		return domain.Product{}, err
	}
	product.Type = domain.ProductType(kind)
	product.Price = price.InexactFloat64()
	product.CreatedAt = product.CreatedAt.UTC()
	product.UpdatedAt = product.UpdatedAt.UTC()
	return product, nil
}

type couponRepository struct {
	db *sql.DB
}

// NewCouponRepository создаёт PostgreSQL-реализацию хранилища купонов.
func NewCouponRepository(store *Store) domain.CouponRepository {
	return &couponRepository{db: store.DB()}
}

func (r *couponRepository) Create(ctx context.Context, coupon domain.Coupon) (domain.Coupon, error) {
	if err := coupon.Validate(); err != nil {
		return domain.Coupon{}, err
	}
	now := time.Now().UTC()
	coupon.ID = uuid.NewString()
	coupon.CreatedAt = now
	coupon.UpdatedAt = now

	ctx, cancel := withTimeout(ctx)
	defer cancel()

	if _, err := r.db.ExecContext(ctx, `
		INSERT INTO cupons (`+couponColumns+`) VALUES ($1,$2,$3,$4,$5,$6)
	`,
		coupon.ID, coupon.Code, money(coupon.Discount), coupon.Active, coupon.CreatedAt, coupon.UpdatedAt,
	); err != nil {
		if isUniqueViolation(err, couponCodeConstrain) {
			return domain.Coupon{}, domain.ErrCouponCodeTaken
		}
		return domain.Coupon{}, persistenceErr("insert coupon", err)
	}
	return coupon, nil
}

func (r *couponRepository) Get(ctx context.Context, id string) (domain.Coupon, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	coupon, err := scanCoupon(r.db.QueryRowContext(ctx, `SELECT `+couponColumns+` FROM cupons WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Coupon{}, domain.ErrCouponNotFound
		}
		return domain.Coupon{}, persistenceErr("select coupon", err)
	}
	return coupon, nil
}

func (r *couponRepository) List(ctx context.Context) ([]domain.Coupon, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, `SELECT `+couponColumns+` FROM cupons ORDER BY created_at, id`)
	if err != nil {
		return nil, persistenceErr("list coupons", err)
	}
	defer rows.Close()

	coupons := make([]domain.Coupon, 0)
	for rows.Next() {
		coupon, err := scanCoupon(rows)
		if err != nil {
			return nil, persistenceErr("scan coupon", err)
		}
		coupons = append(coupons, coupon)
	}
	if err := rows.Err(); err != nil {
		return nil, persistenceErr("iterate coupons", err)
	}
	return coupons, nil
}

func (r *couponRepository) Update(ctx context.Context, coupon domain.Coupon) (domain.Coupon, error) {
	if err := coupon.Validate(); err != nil {
		return domain.Coupon{}, err
	}

	ctx, cancel := withTimeout(ctx)
	defer cancel()

	updated, err := scanCoupon(r.db.QueryRowContext(ctx, `
		UPDATE cupons
		SET codigo = $2, desconto = $3, ativo = $4, updated_at = $5
		WHERE id = $1
		RETURNING `+couponColumns,
		coupon.ID, coupon.Code, money(coupon.Discount), coupon.Active, time.Now().UTC(),
	))
	if err != nil {
		switch {
		case errors.Is(err, sql.ErrNoRows):
			return domain.Coupon{}, domain.ErrCouponNotFound
		case isUniqueViolation(err, couponCodeConstrain):
			return domain.Coupon{}, domain.ErrCouponCodeTaken
		}
		return domain.Coupon{}, persistenceErr("update coupon", err)
	}
	return updated, nil
}

func (r *couponRepository) Delete(ctx context.Context, id string) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	return deleteByID(ctx, r.db, `DELETE FROM cupons WHERE id = $1`, id, domain.ErrCouponNotFound)
}

func scanCoupon(row rowScanner) (domain.Coupon, error) {
	var (
		coupon   domain.Coupon
		discount decimal.Decimal
	)
	if err := row.Scan(
		&coupon.ID, &coupon.Code, &discount, &coupon.Active, &coupon.CreatedAt, &coupon.UpdatedAt,
	); err != nil {
		return domain.Coupon{}, err
	}
	coupon.Discount = discount.InexactFloat64()
	coupon.CreatedAt = coupon.CreatedAt.UTC()
	coupon.UpdatedAt = coupon.UpdatedAt.UTC()
	return coupon, nil
}

func deleteByID(ctx context.Context, db *sql.DB, query, id string, notFound error) error {
	res, err := db.ExecContext(ctx, query, id)
	if err != nil {
		return persistenceErr("delete", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return persistenceErr("rows affected", err)
	}
	if affected == 0 {
		return notFound
	}
	return nil
}

var (
	_ domain.ProductRepository = (*productRepository)(nil)
	_ domain.CouponRepository  = (*couponRepository)(nil)
)
