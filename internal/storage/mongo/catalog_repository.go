package mongo

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/vladislavdragonenkov/camisetas/internal/domain"
)

type productDocument struct {
	ID        primitive.ObjectID `bson:"_id"`
	Name      string             `bson:"nome"`
	Size      string             `bson:"tamanho"`
	Type      string             `bson:"tipo"`
	Price     float64            `bson:"preco"`
	Image     string             `bson:"imagem,omitempty"`
	CreatedAt time.Time          `bson:"createdAt"`
	UpdatedAt time.Time          `bson:"updatedAt"`
}

func (d productDocument) toDomain() domain.Product {
	return domain.Product{
		ID:        d.ID.Hex(),
		Name:      d.Name,
		Size:      d.Size,
		Type:      domain.ProductType(d.Type),
		Price:     d.Price,
		Image:     d.Image,
		CreatedAt: d.CreatedAt.UTC(),
		UpdatedAt: d.UpdatedAt.UTC(),
	}
}

type productRepository struct {
	coll *mongo.Collection
}

// NewProductRepository создаёт MongoDB-реализацию каталога футболок.
func NewProductRepository(store *Store) domain.ProductRepository {
	return &productRepository{coll: store.db.Collection(productsCollection)}
}

func (r *productRepository) Create(ctx context.Context, product domain.Product) (domain.Product, error) {
	if err := product.Validate(); err != nil {
		return domain.Product{}, err
	}
	now := time.Now().UTC()
	doc := productDocument{
		ID:        primitive.NewObjectID(),
		Name:      product.Name,
		Size:      product.Size,
		Type:      string(product.Type),
		Price:     product.Price,
		Image:     product.Image,
		CreatedAt: now,
		UpdatedAt: now,
	}

	ctx, cancel := withTimeout(ctx)
	defer cancel()

	if _, err := r.coll.InsertOne(ctx, doc); err != nil {
		return domain.Product{}, persistenceErr("insert product", err)
	}
	return doc.toDomain(), nil
}

func (r *productRepository) Get(ctx context.Context, id string) (domain.Product, error) {
	oid, err := parseObjectID(id, domain.ErrProductNotFound)
	if err != nil {
		return domain.Product{}, err
	}

	ctx, cancel := withTimeout(ctx)
	defer cancel()

	var doc productDocument
	if err := r.coll.FindOne(ctx, bson.M{"_id": oid}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return domain.Product{}, domain.ErrProductNotFound
		}
		return domain.Product{}, persistenceErr("find product", err)
	}
	return doc.toDomain(), nil
}

func (r *productRepository) List(ctx context.Context) ([]domain.Product, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	cursor, err := r.coll.Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}, {Key: "_id", Value: 1}}))
	if err != nil {
		return nil, persistenceErr("find products", err)
	}
	defer cursor.Close(ctx)

	var docs []productDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, persistenceErr("decode products", err)
	}
	products := make([]domain.Product, 0, len(docs))
	for _, doc := range docs {
		products = append(products, doc.toDomain())
	}
	return products, nil
}

func (r *productRepository) Update(ctx context.Context, product domain.Product) (domain.Product, error) {
	if err := product.Validate(); err != nil {
		return domain.Product{}, err
	}
	oid, err := parseObjectID(product.ID, domain.ErrProductNotFound)
	if err != nil {
		return domain.Product{}, err
	}

	ctx, cancel := withTimeout(ctx)
	defer cancel()

	var doc productDocument
	err = r.coll.FindOneAndUpdate(ctx,
		bson.M{"_id": oid},
		bson.M{"$set": bson.M{
			"nome":      product.Name,
			"tamanho":   product.Size,
			"tipo":      string(product.Type),
			"preco":     product.Price,
			"imagem":    product.Image,
			"updatedAt": time.Now().UTC(),
		}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return domain.Product{}, domain.ErrProductNotFound
		}
		return domain.Product{}, persistenceErr("update product", err)
	}
	return doc.toDomain(), nil
}

func (r *productRepository) Delete(ctx context.Context, id string) error {
	return deleteByObjectID(ctx, r.coll, id, domain.ErrProductNotFound)
}

type couponDocument struct {
	ID        primitive.ObjectID `bson:"_id"`
	Code      string             `bson:"codigo"`
	Discount  float64            `bson:"desconto"`
	Active    bool               `bson:"ativo"`
	CreatedAt time.Time          `bson:"createdAt"`
	UpdatedAt time.Time          `bson:"updatedAt"`
}

func (d couponDocument) toDomain() domain.Coupon {
	return domain.Coupon{
		ID:        d.ID.Hex(),
		Code:      d.Code,
		Discount:  d.Discount,
		Active:    d.Active,
		CreatedAt: d.CreatedAt.UTC(),
		UpdatedAt: d.UpdatedAt.UTC(),
	}
}

type couponRepository struct {
	coll *mongo.Collection
}

// NewCouponRepository создаёт MongoDB-реализацию хранилища купонов.
// Уникальность кода держит индекс cupons_codigo_unique.
func NewCouponRepository(store *Store) domain.CouponRepository {
	return &couponRepository{coll: store.db.Collection(couponsCollection)}
}

func (r *couponRepository) Create(ctx context.Context, coupon domain.Coupon) (domain.Coupon, error) {
	if err := coupon.Validate(); err != nil {
		return domain.Coupon{}, err
	}
	now := time.Now().UTC()
	doc := couponDocument{
		ID:        primitive.NewObjectID(),
		Code:      coupon.Code,
		Discount:  coupon.Discount,
		Active:    coupon.Active,
		CreatedAt: now,
		UpdatedAt: now,
	}

	ctx, cancel := withTimeout(ctx)
	defer cancel()

	if _, err := r.coll.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return domain.Coupon{}, domain.ErrCouponCodeTaken
		}
		return domain.Coupon{}, persistenceErr("insert coupon", err)
	}
	return doc.toDomain(), nil
}

func (r *couponRepository) Get(ctx context.Context, id string) (domain.Coupon, error) {
	oid, err := parseObjectID(id, domain.ErrCouponNotFound)
	if err != nil {
		return domain.Coupon{}, err
	}

	ctx, cancel := withTimeout(ctx)
	defer cancel()

	var doc couponDocument
	if err := r.coll.FindOne(ctx, bson.M{"_id": oid}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return domain.Coupon{}, domain.ErrCouponNotFound
		}
		return domain.Coupon{}, persistenceErr("find coupon", err)
	}
	return doc.toDomain(), nil
}

func (r *couponRepository) List(ctx context.Context) ([]domain.Coupon, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	cursor, err := r.coll.Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}, {Key: "_id", Value: 1}}))
	if err != nil {
		return nil, persistenceErr("find coupons", err)
	}
	defer cursor.Close(ctx)

	var docs []couponDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, persistenceErr("decode coupons", err)
	}
	coupons := make([]domain.Coupon, 0, len(docs))
	for _, doc := range docs {
		coupons = append(coupons, doc.toDomain())
	}
	return coupons, nil
}

func (r *couponRepository) Update(ctx context.Context, coupon domain.Coupon) (domain.Coupon, error) {
	if err := coupon.Validate(); err != nil {
		return domain.Coupon{}, err
	}
	oid, err := parseObjectID(coupon.ID, domain.ErrCouponNotFound)
	if err != nil {
		return domain.Coupon{}, err
	}

	ctx, cancel := withTimeout(ctx)
	defer cancel()

	var doc couponDocument
	err = r.coll.FindOneAndUpdate(ctx,
		bson.M{"_id": oid},
		bson.M{"$set": bson.M{
			"codigo":    coupon.Code,
			"desconto":  coupon.Discount,
			"ativo":     coupon.Active,
			"updatedAt": time.Now().UTC(),
		}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&doc)
	if err != nil {
		switch {
		case errors.Is(err, mongo.ErrNoDocuments):
			return domain.Coupon{}, domain.ErrCouponNotFound
		case mongo.IsDuplicateKeyError(err):
			return domain.Coupon{}, domain.ErrCouponCodeTaken
		}
		return domain.Coupon{}, persistenceErr("update coupon", err)
	}
	return doc.toDomain(), nil
}

func (r *couponRepository) Delete(ctx context.Context, id string) error {
	return deleteByObjectID(ctx, r.coll, id, domain.ErrCouponNotFound)
}

func deleteByObjectID(ctx context.Context, coll *mongo.Collection, id string, notFound error) error {
	oid, err := parseObjectID(id, notFound)
	if err != nil {
		return err
	}

	ctx, cancel := withTimeout(ctx)
	defer cancel()

	res, err := coll.DeleteOne(ctx, bson.M{"_id": oid})
	if err != nil {
		return persistenceErr("delete", err)
	}
	if res.DeletedCount == 0 {
		return notFound
	}
	return nil
}

var (
	_ domain.ProductRepository = (*productRepository)(nil)
	_ domain.CouponRepository  = (*couponRepository)(nil)
)
