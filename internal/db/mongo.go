package db

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ukydev/fleet-journey/internal/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	JourneysCollection = "journeys"
	VehiclesCollection = "vehicles"
	UsersCollection    = "users"

	defaultJourneyLimit = 50
	maxJourneyLimit     = 500
)

// ConnectMongo connects to MongoDB and verifies the connection with a ping.
func ConnectMongo(ctx context.Context, uri string) (*mongo.Client, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("mongo.Connect error: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongo.Ping error: %w", err)
	}
	return client, nil
}

// EnsureIndexes creates the indexes the collections rely on. It is safe to
// call on every start.
func EnsureIndexes(ctx context.Context, database *mongo.Database) error {
	indexes := map[string][]mongo.IndexModel{
		JourneysCollection: {
			{Keys: bson.D{{Key: "driver_id", Value: 1}, {Key: "start_time", Value: -1}}},
			{Keys: bson.D{{Key: "plate", Value: 1}, {Key: "start_time", Value: -1}}},
			{Keys: bson.D{{Key: "journey_id", Value: 1}}, Options: options.Index().SetUnique(true)},
		},
		VehiclesCollection: {
			{Keys: bson.D{{Key: "plate", Value: 1}}, Options: options.Index().SetUnique(true)},
		},
		UsersCollection: {
			{Keys: bson.D{{Key: "username", Value: 1}}, Options: options.Index().SetUnique(true)},
			{Keys: bson.D{{Key: "email", Value: 1}}, Options: options.Index().SetUnique(true)},
		},
	}
	for name, idx := range indexes {
		if _, err := database.Collection(name).Indexes().CreateMany(ctx, idx); err != nil {
			return fmt.Errorf("creating indexes on %s: %w", name, err)
		}
	}
	return nil
}

// MongoJourneyCollection stores finished journeys.
type MongoJourneyCollection struct {
	Collection *mongo.Collection
}

// InsertJourney inserts a finished journey into the history collection.
func (c *MongoJourneyCollection) InsertJourney(ctx context.Context, journey models.JourneyRecord) error {
	if c.Collection == nil {
		return fmt.Errorf("mongo collection is nil")
	}
	if journey.ID.IsZero() {
		journey.ID = primitive.NewObjectID()
	}
	if journey.CreatedAt.IsZero() {
		journey.CreatedAt = time.Now()
	}
	_, err := c.Collection.InsertOne(ctx, journey)
	return err
}

// FindJourneys returns journeys matching filter, most recent first.
func (c *MongoJourneyCollection) FindJourneys(ctx context.Context, filter models.JourneyFilter) ([]models.JourneyRecord, error) {
	if c.Collection == nil {
		return nil, fmt.Errorf("mongo collection is nil")
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "start_time", Value: -1}}).
		SetLimit(journeyLimit(filter.Limit))

	cursor, err := c.Collection.Find(ctx, journeyQuery(filter), opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	journeys := []models.JourneyRecord{}
	if err := cursor.All(ctx, &journeys); err != nil {
		return nil, err
	}
	return journeys, nil
}

// FindJourneyByID finds a journey by its document ID.
func (c *MongoJourneyCollection) FindJourneyByID(ctx context.Context, id string) (*models.JourneyRecord, error) {
	if c.Collection == nil {
		return nil, fmt.Errorf("mongo collection is nil")
	}
	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid journey ID %q", ErrNotFound, id)
	}
	var journey models.JourneyRecord
	err = c.Collection.FindOne(ctx, bson.M{"_id": objectID}).Decode(&journey)
	if err == mongo.ErrNoDocuments {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &journey, nil
}

func journeyQuery(f models.JourneyFilter) bson.M {
	q := bson.M{}
	if f.DriverID != "" {
		q["driver_id"] = f.DriverID
	}
	if f.Plate != "" {
		q["plate"] = NormalizePlate(f.Plate)
	}
	window := bson.M{}
	if !f.From.IsZero() {
		window["$gte"] = f.From
	}
	if !f.To.IsZero() {
		window["$lt"] = f.To
	}
	if len(window) > 0 {
		q["start_time"] = window
	}
	return q
}

func journeyLimit(n int64) int64 {
	switch {
	case n <= 0:
		return defaultJourneyLimit
	case n > maxJourneyLimit:
		return maxJourneyLimit
	default:
		return n
	}
}

// NormalizePlate upper-cases a licence plate and strips separators so that
// "abc-1d23" and "ABC 1D23" refer to the same vehicle.
func NormalizePlate(plate string) string {
	r := strings.NewReplacer("-", "", " ", "")
	return strings.ToUpper(r.Replace(strings.TrimSpace(plate)))
}

// MongoVehicleCollection stores fleet vehicles.
type MongoVehicleCollection struct {
	Collection *mongo.Collection
}

// InsertVehicle inserts a vehicle record into the collection.
func (c *MongoVehicleCollection) InsertVehicle(ctx context.Context, vehicle models.Vehicle) error {
	if c.Collection == nil {
		return fmt.Errorf("mongo collection is nil")
	}
	vehicle.Plate = NormalizePlate(vehicle.Plate)
	vehicle.CreatedAt = time.Now()
	vehicle.UpdatedAt = vehicle.CreatedAt
	_, err := c.Collection.InsertOne(ctx, vehicle)
	return err
}

// FindVehicleByPlate finds a vehicle by its licence plate.
func (c *MongoVehicleCollection) FindVehicleByPlate(ctx context.Context, plate string) (*models.Vehicle, error) {
	if c.Collection == nil {
		return nil, fmt.Errorf("mongo collection is nil")
	}
	var vehicle models.Vehicle
	err := c.Collection.FindOne(ctx, bson.M{"plate": NormalizePlate(plate)}).Decode(&vehicle)
	if err == mongo.ErrNoDocuments {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &vehicle, nil
}

// UpdateOdometer raises the stored odometer to km. A lower reading never
// rolls the stored value back.
func (c *MongoVehicleCollection) UpdateOdometer(ctx context.Context, plate string, km int64) error {
	if c.Collection == nil {
		return fmt.Errorf("mongo collection is nil")
	}
	result, err := c.Collection.UpdateOne(ctx,
		bson.M{"plate": NormalizePlate(plate)},
		bson.M{
			"$max": bson.M{"odometer_km": km},
			"$set": bson.M{"updated_at": time.Now()},
		},
	)
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}
