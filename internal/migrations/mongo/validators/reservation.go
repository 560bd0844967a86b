package validators

import "go.mongodb.org/mongo-driver/bson"

// ReservationValidator enforces document shape and, through $expr, the
// storage-level rule that a reservation's end must come strictly after its
// start. Overlap exclusion itself is handled by the guarded insert; this
// validator is the backstop against degenerate ranges.
var ReservationValidator = bson.M{
	"$and": []bson.M{
		{
			"$jsonSchema": bson.M{
				"bsonType": "object",
				"required": []string{
					"user_id",
					"resource_id",
					"title",
					"start_at",
					"end_at",
					"status",
					"created_at",
				},
				"additionalProperties": true,

				"properties": bson.M{
					"_id": bson.M{
						"bsonType": "string",
					},

					"user_id": bson.M{
						"bsonType": "string",
					},

					"resource_id": bson.M{
						"bsonType": "string",
					},

					"title": bson.M{
						"bsonType":  "string",
						"minLength": 1,
						"maxLength": 200,
					},

					"description": bson.M{
						"bsonType":  "string",
						"maxLength": 2000,
					},

					"start_at": bson.M{
						"bsonType": "date",
					},

					"end_at": bson.M{
						"bsonType": "date",
					},

					"status": bson.M{
						"bsonType": "string",
						"enum": []string{
							"active",
							"cancelled",
						},
					},

					"calendar_event_id": bson.M{
						"bsonType": "string",
					},

					"created_at": bson.M{
						"bsonType": "date",
					},

					"updated_at": bson.M{
						"bsonType": "date",
					},
				},
			},
		},
		{
			"$expr": bson.M{
				"$gt": bson.A{"$end_at", "$start_at"},
			},
		},
	},
}
