package database

import (
	"context"
	"errors"
	"fmt"

	"keyadmin/entity"
	"keyadmin/internal/config"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	collectionUsers = "users"
	collectionAudit = "audit_log"
)

type MongoDB struct {
	ctx           context.Context
	clientOptions *options.ClientOptions
	database      string
}

func NewMongoClient(conf *config.Config) *MongoDB {
	if !conf.Mongo.Enabled {
		return nil
	}
	connectionUri := fmt.Sprintf("mongodb://%s:%s", conf.Mongo.Host, conf.Mongo.Port)
	clientOptions := options.Client().ApplyURI(connectionUri)
	if conf.Mongo.User != "" {
		clientOptions.SetAuth(options.Credential{
			Username:   conf.Mongo.User,
			Password:   conf.Mongo.Password,
			AuthSource: conf.Mongo.Database,
		})
	}
	return &MongoDB{
		ctx:           context.Background(),
		clientOptions: clientOptions,
		database:      conf.Mongo.Database,
	}
}

func (m *MongoDB) connect() (*mongo.Client, error) {
	connection, err := mongo.Connect(m.ctx, m.clientOptions)
	if err != nil {
		return nil, fmt.Errorf("mongodb connect: %w", err)
	}
	return connection, nil
}

func (m *MongoDB) disconnect(connection *mongo.Client) {
	_ = connection.Disconnect(m.ctx)
}

func (m *MongoDB) findError(err error) error {
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil
	}
	return fmt.Errorf("mongodb find: %w", err)
}

// GetUser returns the API user owning token, or nil when there is none.
func (m *MongoDB) GetUser(token string) (*entity.User, error) {
	connection, err := m.connect()
	if err != nil {
		return nil, err
	}
	defer m.disconnect(connection)

	collection := connection.Database(m.database).Collection(collectionUsers)
	filter := bson.D{{Key: "token", Value: token}}
	var user entity.User
	if err = collection.FindOne(m.ctx, filter).Decode(&user); err != nil {
		return nil, m.findError(err)
	}
	return &user, nil
}

func (m *MongoDB) SaveAuditEvent(event *entity.AuditEvent) error {
	connection, err := m.connect()
	if err != nil {
		return err
	}
	defer m.disconnect(connection)

	collection := connection.Database(m.database).Collection(collectionAudit)
	_, err = collection.InsertOne(m.ctx, event)
	if err != nil {
		return fmt.Errorf("mongodb insert: %w", err)
	}
	return nil
}

// AuditEvents lists the latest events, newest first.
func (m *MongoDB) AuditEvents(limit int64) ([]*entity.AuditEvent, error) {
	connection, err := m.connect()
	if err != nil {
		return nil, err
	}
	defer m.disconnect(connection)

	collection := connection.Database(m.database).Collection(collectionAudit)
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}}).SetLimit(limit)
	cursor, err := collection.Find(m.ctx, bson.D{}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(m.ctx)

	var events []*entity.AuditEvent
	if err = cursor.All(m.ctx, &events); err != nil {
		return nil, err
	}
	return events, nil
}
