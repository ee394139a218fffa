package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/carelink-solutions/carelink-auth/internal/domain"
	"github.com/carelink-solutions/carelink-auth/pkg/database"
	apperrors "github.com/carelink-solutions/carelink-auth/pkg/errors"
)

// CollectionName is the collection user documents live in.
const CollectionName = "users"

// userDocument is the stored shape of a user. Field names match the
// documents written by earlier versions of the service.
type userDocument struct {
	ID                 bson.ObjectID `bson:"_id,omitempty"`
	Email              string        `bson:"email"`
	Password           string        `bson:"password"`
	Role               string        `bson:"role"`
	CaregiverID        *string       `bson:"caregiverID"`
	PatientID          *string       `bson:"patientID"`
	Phone              string        `bson:"phone"`
	Address1           string        `bson:"address1"`
	Address2           string        `bson:"address2,omitempty"`
	City               string        `bson:"city"`
	State              string        `bson:"state"`
	County             string        `bson:"county"`
	Zip                string        `bson:"zip"`
	FirstName          string        `bson:"firstName"`
	LastName           string        `bson:"lastName"`
	AgreeTerms         bool          `bson:"agreeTerms"`
	AgreePrivacyPolicy bool          `bson:"agreePrivacyPolicy"`
	TokenVersion       int           `bson:"tokenVersion"`
	CreatedAt          time.Time     `bson:"createdAt"`
	UpdatedAt          time.Time     `bson:"updatedAt"`
}

func toDocument(u *domain.User) userDocument {
	return userDocument{
		Email:              u.Email,
		Password:           u.PasswordHash,
		Role:               string(u.Role),
		CaregiverID:        u.CaregiverID,
		PatientID:          u.PatientID,
		Phone:              u.Phone,
		Address1:           u.Address1,
		Address2:           u.Address2,
		City:               u.City,
		State:              u.State,
		County:             u.County,
		Zip:                u.Zip,
		FirstName:          u.FirstName,
		LastName:           u.LastName,
		AgreeTerms:         u.AgreeTerms,
		AgreePrivacyPolicy: u.AgreePrivacyPolicy,
		TokenVersion:       u.TokenVersion,
		CreatedAt:          u.CreatedAt,
		UpdatedAt:          u.UpdatedAt,
	}
}

func (d *userDocument) toDomain() *domain.User {
	return &domain.User{
		ID:                 d.ID.Hex(),
		Email:              d.Email,
		PasswordHash:       d.Password,
		Role:               domain.Role(d.Role),
		CaregiverID:        d.CaregiverID,
		PatientID:          d.PatientID,
		Phone:              d.Phone,
		Address1:           d.Address1,
		Address2:           d.Address2,
		City:               d.City,
		State:              d.State,
		County:             d.County,
		Zip:                d.Zip,
		FirstName:          d.FirstName,
		LastName:           d.LastName,
		AgreeTerms:         d.AgreeTerms,
		AgreePrivacyPolicy: d.AgreePrivacyPolicy,
		TokenVersion:       d.TokenVersion,
		CreatedAt:          d.CreatedAt,
		UpdatedAt:          d.UpdatedAt,
	}
}

// UserRepository implements repository.UserRepository on a MongoDB
// collection. Ids are ObjectIDs in hex form.
type UserRepository struct {
	coll *mongo.Collection
}

func NewUserRepository(db *mongo.Database) *UserRepository {
	return &UserRepository{coll: db.Collection(CollectionName)}
}

// EnsureIndexes creates the unique email index. It is idempotent.
func (r *UserRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "email", Value: 1}},
		Options: options.Index().SetUnique(true).SetName("email_unique"),
	})
	if err != nil {
		return fmt.Errorf("create email index: %w", err)
	}
	return nil
}

func (r *UserRepository) Create(ctx context.Context, u *domain.User) (err error) {
	ctx, end := database.TraceQuery(ctx, database.SystemMongo, "CreateUser", "users.insertOne")
	defer func() { end(err) }()

	now := time.Now().UTC().Truncate(time.Millisecond)
	doc := toDocument(u)
	doc.ID = bson.NewObjectID()
	doc.CreatedAt, doc.UpdatedAt = now, now

	if _, err = r.coll.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return apperrors.AlreadyExists("user", "email", u.Email)
		}
		return fmt.Errorf("insert user: %w", err)
	}

	u.ID, u.CreatedAt, u.UpdatedAt = doc.ID.Hex(), now, now
	return nil
}

func (r *UserRepository) GetByID(ctx context.Context, id string) (_ *domain.User, err error) {
	ctx, end := database.TraceQuery(ctx, database.SystemMongo, "GetUserByID", `users.findOne({_id:?})`)
	defer func() { end(err) }()

	oid, err := bson.ObjectIDFromHex(id)
	if err != nil {
		return nil, apperrors.NotFound("user", id)
	}
	return r.findOne(ctx, bson.D{{Key: "_id", Value: oid}}, id)
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (_ *domain.User, err error) {
	ctx, end := database.TraceQuery(ctx, database.SystemMongo, "GetUserByEmail", `users.findOne({email:?})`)
	defer func() { end(err) }()

	return r.findOne(ctx, bson.D{{Key: "email", Value: email}}, "")
}

func (r *UserRepository) findOne(ctx context.Context, filter bson.D, id string) (*domain.User, error) {
	var doc userDocument
	if err := r.coll.FindOne(ctx, filter).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, notFound(id)
		}
		return nil, fmt.Errorf("find user: %w", err)
	}
	return doc.toDomain(), nil
}

func (r *UserRepository) List(ctx context.Context, offset, limit int) (_ []domain.User, _ int, err error) {
	ctx, end := database.TraceQuery(ctx, database.SystemMongo, "ListUsers", "users.find().sort({createdAt:-1})")
	defer func() { end(err) }()

	total, err := r.coll.CountDocuments(ctx, bson.D{})
	if err != nil {
		return nil, 0, fmt.Errorf("count users: %w", err)
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: 1}}).
		SetSkip(int64(offset)).
		SetLimit(int64(limit))

	cur, err := r.coll.Find(ctx, bson.D{}, opts)
	if err != nil {
		return nil, 0, fmt.Errorf("list users: %w", err)
	}
	var docs []userDocument
	if err = cur.All(ctx, &docs); err != nil {
		return nil, 0, fmt.Errorf("decode users: %w", err)
	}

	users := make([]domain.User, 0, len(docs))
	for i := range docs {
		users = append(users, *docs[i].toDomain())
	}
	return users, int(total), nil
}

func (r *UserRepository) Update(ctx context.Context, u *domain.User, bumpTokenVersion bool) (err error) {
	ctx, end := database.TraceQuery(ctx, database.SystemMongo, "UpdateUser", `users.findOneAndUpdate({_id:?},{$set:{...},$inc:{tokenVersion:?}})`)
	defer func() { end(err) }()

	oid, err := bson.ObjectIDFromHex(u.ID)
	if err != nil {
		return apperrors.NotFound("user", u.ID)
	}

	update := updateDocument(u, bumpTokenVersion)
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var doc userDocument
	if err = r.coll.FindOneAndUpdate(ctx, bson.D{{Key: "_id", Value: oid}}, update, opts).Decode(&doc); err != nil {
		switch {
		case errors.Is(err, mongo.ErrNoDocuments):
			return apperrors.NotFound("user", u.ID)
		case mongo.IsDuplicateKeyError(err):
			return apperrors.AlreadyExists("user", "email", u.Email)
		}
		return fmt.Errorf("update user: %w", err)
	}

	u.TokenVersion = doc.TokenVersion
	u.UpdatedAt = doc.UpdatedAt
	return nil
}

// updateDocument builds the update for u. createdAt is immutable and
// tokenVersion is only ever incremented.
func updateDocument(u *domain.User, bumpTokenVersion bool) bson.D {
	doc := toDocument(u)
	doc.UpdatedAt = time.Now().UTC().Truncate(time.Millisecond)

	bump := 0
	if bumpTokenVersion {
		bump = 1
	}

	set := bson.D{
		{Key: "email", Value: doc.Email},
		{Key: "password", Value: doc.Password},
		{Key: "role", Value: doc.Role},
		{Key: "caregiverID", Value: doc.CaregiverID},
		{Key: "patientID", Value: doc.PatientID},
		{Key: "phone", Value: doc.Phone},
		{Key: "address1", Value: doc.Address1},
		{Key: "address2", Value: doc.Address2},
		{Key: "city", Value: doc.City},
		{Key: "state", Value: doc.State},
		{Key: "county", Value: doc.County},
		{Key: "zip", Value: doc.Zip},
		{Key: "firstName", Value: doc.FirstName},
		{Key: "lastName", Value: doc.LastName},
		{Key: "agreeTerms", Value: doc.AgreeTerms},
		{Key: "agreePrivacyPolicy", Value: doc.AgreePrivacyPolicy},
		{Key: "updatedAt", Value: doc.UpdatedAt},
	}
	return bson.D{
		{Key: "$set", Value: set},
		{Key: "$inc", Value: bson.D{{Key: "tokenVersion", Value: bump}}},
	}
}

func (r *UserRepository) Delete(ctx context.Context, id string) (_ *domain.User, err error) {
	ctx, end := database.TraceQuery(ctx, database.SystemMongo, "DeleteUser", `users.findOneAndDelete({_id:?})`)
	defer func() { end(err) }()

	oid, err := bson.ObjectIDFromHex(id)
	if err != nil {
		return nil, apperrors.NotFound("user", id)
	}

	var doc userDocument
	if err = r.coll.FindOneAndDelete(ctx, bson.D{{Key: "_id", Value: oid}}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, apperrors.NotFound("user", id)
		}
		return nil, fmt.Errorf("delete user: %w", err)
	}
	return doc.toDomain(), nil
}

func (r *UserRepository) IncrementTokenVersion(ctx context.Context, id string) (_ int, err error) {
	ctx, end := database.TraceQuery(ctx, database.SystemMongo, "IncrementTokenVersion", `users.findOneAndUpdate({_id:?},{$inc:{tokenVersion:1}})`)
	defer func() { end(err) }()

	oid, err := bson.ObjectIDFromHex(id)
	if err != nil {
		return 0, apperrors.NotFound("user", id)
	}

	update := bson.D{
		{Key: "$inc", Value: bson.D{{Key: "tokenVersion", Value: 1}}},
		{Key: "$set", Value: bson.D{{Key: "updatedAt", Value: time.Now().UTC()}}},
	}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var doc userDocument
	if err = r.coll.FindOneAndUpdate(ctx, bson.D{{Key: "_id", Value: oid}}, update, opts).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return 0, apperrors.NotFound("user", id)
		}
		return 0, fmt.Errorf("increment token version: %w", err)
	}
	return doc.TokenVersion, nil
}

func notFound(id string) error {
	if id == "" {
		return apperrors.ErrNotFound
	}
	return apperrors.NotFound("user", id)
}
