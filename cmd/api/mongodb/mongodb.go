package mongodb

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/library-service/cmd/api/library"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

const (
	collectionUsers       = "users"
	collectionBooks       = "books"
	collectionAssignments = "assign"
)

type userDocument struct {
	ID       primitive.ObjectID `bson:"_id,omitempty"`
	Name     string             `bson:"name"`
	Email    string             `bson:"email"`
	Username string             `bson:"username"`
	Password string             `bson:"password"`
}

type bookDocument struct {
	ID           primitive.ObjectID `bson:"_id,omitempty"`
	Name         string             `bson:"name"`
	Type         string             `bson:"type"`
	Language     string             `bson:"language"`
	Availability string             `bson:"availability"`
	Quantity     int                `bson:"quantity"`
}

type lineItemDocument struct {
	BookID   string `bson:"bookId"`
	Quantity int    `bson:"quantity"`
}

type assignmentDocument struct {
	ID         primitive.ObjectID `bson:"_id,omitempty"`
	UserID     primitive.ObjectID `bson:"userId"`
	Books      []lineItemDocument `bson:"books"`
	DueDate    string             `bson:"dueDate"`
	AssignedAt time.Time          `bson:"assignedAt"`
}

// Store keeps users, books and assignments in three collections of one
// MongoDB database.
type Store struct {
	users       *mongo.Collection
	books       *mongo.Collection
	assignments *mongo.Collection
}

/* Connects to MongoDB through a connection string and checks the primary answers. */
func Connect(ctx context.Context, uri string) (*mongo.Client, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connecting to mongodb: %w", err)
	}

	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("connecting to mongodb, pinging: %w", err)
	}

	slog.Info("successfully connected to mongodb")
	return client, nil
}

func NewStore(client *mongo.Client, dbName string) *Store {
	db := client.Database(dbName)
	return &Store{
		users:       db.Collection(collectionUsers),
		books:       db.Collection(collectionBooks),
		assignments: db.Collection(collectionAssignments),
	}
}

func objectID(id string) (primitive.ObjectID, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return primitive.NilObjectID, library.ErrResponseIdInvalidFormat
	}
	return oid, nil
}

func userFromDocument(d userDocument) library.User {
	return library.User{
		ID:       d.ID.Hex(),
		Name:     d.Name,
		Email:    d.Email,
		Username: d.Username,
		Password: d.Password,
	}
}

func bookFromDocument(d bookDocument) library.Book {
	return library.Book{
		ID:           d.ID.Hex(),
		Name:         d.Name,
		Type:         d.Type,
		Language:     d.Language,
		Availability: d.Availability,
		Quantity:     d.Quantity,
	}
}

func assignmentFromDocument(d assignmentDocument) library.Assignment {
	items := make([]library.LineItem, 0, len(d.Books))
	for _, item := range d.Books {
		items = append(items, library.LineItem{BookID: item.BookID, Quantity: item.Quantity})
	}
	return library.Assignment{
		ID:         d.ID.Hex(),
		UserID:     d.UserID.Hex(),
		Books:      items,
		DueDate:    d.DueDate,
		AssignedAt: d.AssignedAt,
	}
}

// -- Users --

func (store *Store) ListUsers(ctx context.Context) ([]library.User, error) {
	cursor, err := store.users.Find(ctx, bson.D{})
	if err != nil {
		return nil, fmt.Errorf("listing users from db: %w", err)
	}
	var docs []userDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("listing users from db: %w", err)
	}

	users := make([]library.User, 0, len(docs))
	for _, d := range docs {
		users = append(users, userFromDocument(d))
	}
	return users, nil
}

func (store *Store) GetUserByID(ctx context.Context, id string) (library.User, error) {
	oid, err := objectID(id)
	if err != nil {
		return library.User{}, err
	}

	var d userDocument
	err = store.users.FindOne(ctx, bson.M{"_id": oid}).Decode(&d)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return library.User{}, fmt.Errorf("searching user by ID: %w", library.ErrResponseUserNotFound)
		}
		return library.User{}, fmt.Errorf("searching user by ID: %w", err)
	}
	return userFromDocument(d), nil
}

func (store *Store) CreateUser(ctx context.Context, u library.User) (library.User, error) {
	d := userDocument{Name: u.Name, Email: u.Email, Username: u.Username, Password: u.Password}
	result, err := store.users.InsertOne(ctx, d)
	if err != nil {
		return library.User{}, fmt.Errorf("storing user on db: %w", err)
	}

	u.ID = result.InsertedID.(primitive.ObjectID).Hex()
	return u, nil
}

func (store *Store) UpdateUser(ctx context.Context, u library.User) (library.User, error) {
	oid, err := objectID(u.ID)
	if err != nil {
		return library.User{}, err
	}

	update := bson.M{"$set": bson.M{
		"name":     u.Name,
		"email":    u.Email,
		"username": u.Username,
		"password": u.Password,
	}}
	result, err := store.users.UpdateOne(ctx, bson.M{"_id": oid}, update)
	if err != nil {
		return library.User{}, fmt.Errorf("updating user on db: %w", err)
	}
	if result.MatchedCount == 0 {
		return library.User{}, fmt.Errorf("updating user on db: %w", library.ErrResponseUserNotFound)
	}
	return u, nil
}

func (store *Store) DeleteUser(ctx context.Context, id string) error {
	oid, err := objectID(id)
	if err != nil {
		return err
	}

	result, err := store.users.DeleteOne(ctx, bson.M{"_id": oid})
	if err != nil {
		return fmt.Errorf("deleting user from db: %w", err)
	}
	if result.DeletedCount == 0 {
		return fmt.Errorf("deleting user from db: %w", library.ErrResponseUserNotFound)
	}
	return nil
}

func (store *Store) CountUsers(ctx context.Context) (int, error) {
	count, err := store.users.CountDocuments(ctx, bson.D{})
	if err != nil {
		return 0, fmt.Errorf("counting users from db: %w", err)
	}
	return int(count), nil
}

// -- Books --

func (store *Store) ListBooks(ctx context.Context) ([]library.Book, error) {
	cursor, err := store.books.Find(ctx, bson.D{})
	if err != nil {
		return nil, fmt.Errorf("listing books from db: %w", err)
	}
	var docs []bookDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("listing books from db: %w", err)
	}

	books := make([]library.Book, 0, len(docs))
	for _, d := range docs {
		books = append(books, bookFromDocument(d))
	}
	return books, nil
}

func (store *Store) GetBookByID(ctx context.Context, id string) (library.Book, error) {
	oid, err := objectID(id)
	if err != nil {
		return library.Book{}, err
	}

	var d bookDocument
	err = store.books.FindOne(ctx, bson.M{"_id": oid}).Decode(&d)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return library.Book{}, fmt.Errorf("searching book by ID: %w", library.ErrResponseBookNotFound)
		}
		return library.Book{}, fmt.Errorf("searching book by ID: %w", err)
	}
	return bookFromDocument(d), nil
}

func (store *Store) CreateBook(ctx context.Context, b library.Book) (library.Book, error) {
	d := bookDocument{
		Name:         b.Name,
		Type:         b.Type,
		Language:     b.Language,
		Availability: b.Availability,
		Quantity:     b.Quantity,
	}
	result, err := store.books.InsertOne(ctx, d)
	if err != nil {
		return library.Book{}, fmt.Errorf("storing book on db: %w", err)
	}

	b.ID = result.InsertedID.(primitive.ObjectID).Hex()
	return b, nil
}

func (store *Store) UpdateBook(ctx context.Context, b library.Book) (library.Book, error) {
	oid, err := objectID(b.ID)
	if err != nil {
		return library.Book{}, err
	}

	update := bson.M{"$set": bson.M{
		"name":         b.Name,
		"type":         b.Type,
		"language":     b.Language,
		"availability": b.Availability,
		"quantity":     b.Quantity,
	}}
	result, err := store.books.UpdateOne(ctx, bson.M{"_id": oid}, update)
	if err != nil {
		return library.Book{}, fmt.Errorf("updating book on db: %w", err)
	}
	if result.MatchedCount == 0 {
		return library.Book{}, fmt.Errorf("updating book on db: %w", library.ErrResponseBookNotFound)
	}
	return b, nil
}

func (store *Store) DeleteBook(ctx context.Context, id string) error {
	oid, err := objectID(id)
	if err != nil {
		return err
	}

	result, err := store.books.DeleteOne(ctx, bson.M{"_id": oid})
	if err != nil {
		return fmt.Errorf("deleting book from db: %w", err)
	}
	if result.DeletedCount == 0 {
		return fmt.Errorf("deleting book from db: %w", library.ErrResponseBookNotFound)
	}
	return nil
}

func (store *Store) CountBooks(ctx context.Context) (int, error) {
	count, err := store.books.CountDocuments(ctx, bson.D{})
	if err != nil {
		return 0, fmt.Errorf("counting books from db: %w", err)
	}
	return int(count), nil
}

/* Applies $inc on quantity in a single FindOneAndUpdate. Decrements carry a quantity >= n filter, so a concurrent borrow can never overdraw the stock. */
func (store *Store) AdjustBookQuantity(ctx context.Context, id string, delta int) (library.Book, error) {
	oid, err := objectID(id)
	if err != nil {
		return library.Book{}, err
	}

	filter := bson.M{"_id": oid}
	if delta < 0 {
		filter["quantity"] = bson.M{"$gte": -delta}
	}
	update := bson.M{"$inc": bson.M{"quantity": delta}}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var d bookDocument
	err = store.books.FindOneAndUpdate(ctx, filter, update, opts).Decode(&d)
	if err == nil {
		return bookFromDocument(d), nil
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return library.Book{}, fmt.Errorf("adjusting book quantity on db: %w", err)
	}

	// Nothing matched: either the book is gone or the stock is too low.
	current, err := store.GetBookByID(ctx, id)
	if err != nil {
		return library.Book{}, fmt.Errorf("adjusting book quantity on db: %w", err)
	}
	return current, fmt.Errorf("adjusting book quantity on db: %w", library.ErrResponseInsufficientStock)
}

// -- Assignments --

func (store *Store) listAssignments(ctx context.Context, filter bson.M) ([]library.Assignment, error) {
	cursor, err := store.assignments.Find(ctx, filter)
	if err != nil {
		return nil, err
	}
	var docs []assignmentDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}

	assignments := make([]library.Assignment, 0, len(docs))
	for _, d := range docs {
		assignments = append(assignments, assignmentFromDocument(d))
	}
	return assignments, nil
}

func (store *Store) ListAssignments(ctx context.Context) ([]library.Assignment, error) {
	assignments, err := store.listAssignments(ctx, bson.M{})
	if err != nil {
		return nil, fmt.Errorf("listing assignments from db: %w", err)
	}
	return assignments, nil
}

func (store *Store) ListAssignmentsByUser(ctx context.Context, userID string) ([]library.Assignment, error) {
	oid, err := objectID(userID)
	if err != nil {
		return nil, err
	}

	assignments, err := store.listAssignments(ctx, bson.M{"userId": oid})
	if err != nil {
		return nil, fmt.Errorf("listing assignments of user from db: %w", err)
	}
	return assignments, nil
}

func (store *Store) GetAssignmentByID(ctx context.Context, id string) (library.Assignment, error) {
	oid, err := objectID(id)
	if err != nil {
		return library.Assignment{}, err
	}

	var d assignmentDocument
	err = store.assignments.FindOne(ctx, bson.M{"_id": oid}).Decode(&d)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return library.Assignment{}, fmt.Errorf("searching assignment by ID: %w", library.ErrResponseAssignmentNotFound)
		}
		return library.Assignment{}, fmt.Errorf("searching assignment by ID: %w", err)
	}
	return assignmentFromDocument(d), nil
}

func (store *Store) CreateAssignment(ctx context.Context, a library.Assignment) (library.Assignment, error) {
	userOID, err := objectID(a.UserID)
	if err != nil {
		return library.Assignment{}, err
	}

	items := make([]lineItemDocument, 0, len(a.Books))
	for _, item := range a.Books {
		items = append(items, lineItemDocument{BookID: item.BookID, Quantity: item.Quantity})
	}
	d := assignmentDocument{
		UserID:     userOID,
		Books:      items,
		DueDate:    a.DueDate,
		AssignedAt: a.AssignedAt,
	}
	result, err := store.assignments.InsertOne(ctx, d)
	if err != nil {
		return library.Assignment{}, fmt.Errorf("storing assignment on db: %w", err)
	}

	a.ID = result.InsertedID.(primitive.ObjectID).Hex()
	return a, nil
}

func (store *Store) DeleteAssignment(ctx context.Context, id string) error {
	oid, err := objectID(id)
	if err != nil {
		return err
	}

	result, err := store.assignments.DeleteOne(ctx, bson.M{"_id": oid})
	if err != nil {
		return fmt.Errorf("deleting assignment from db: %w", err)
	}
	if result.DeletedCount == 0 {
		return fmt.Errorf("deleting assignment from db: %w", library.ErrResponseAssignmentNotFound)
	}
	return nil
}
