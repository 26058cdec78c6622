package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "CPCA Teachers API",
        "description": "Curriculum assignment reconciliation and lesson progress tracking",
        "version": "0.1.0"
    },
    "basePath": "/",
    "schemes": [
        "http"
    ],
    "tags": [
        {"name": "Curricula", "description": "Curricula, lessons and assignment structure"},
        {"name": "Progress", "description": "Lesson progress ledger and completion views"},
        {"name": "Ops", "description": "Health, readiness and metrics"}
    ],
    "paths": {
        "/health": {
            "get": {
                "tags": ["Ops"],
                "summary": "Liveness check",
                "responses": {
                    "200": {"description": "OK"}
                }
            }
        },
        "/ready": {
            "get": {
                "tags": ["Ops"],
                "summary": "Readiness check against Postgres and Redis",
                "responses": {
                    "200": {"description": "Ready"},
                    "503": {"description": "A dependency is unreachable"}
                }
            }
        },
        "/metrics": {
            "get": {
                "tags": ["Ops"],
                "summary": "Prometheus metrics",
                "produces": ["text/plain"],
                "responses": {
                    "200": {"description": "OK"}
                }
            }
        },
        "/api/v1/curricula": {
            "get": {
                "tags": ["Curricula"],
                "summary": "List curricula",
                "parameters": [
                    {"name": "search", "in": "query", "type": "string"},
                    {"name": "status", "in": "query", "type": "string", "enum": ["draft", "active", "archived", "deprecated"]},
                    {"name": "campus_id", "in": "query", "type": "string"},
                    {"name": "page", "in": "query", "type": "integer"},
                    {"name": "limit", "in": "query", "type": "integer"},
                    {"name": "sort", "in": "query", "type": "string"},
                    {"name": "order", "in": "query", "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "post": {
                "tags": ["Curricula"],
                "summary": "Create curriculum",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/CreateCurriculumRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Code already exists", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/api/v1/curricula/{id}": {
            "get": {
                "tags": ["Curricula"],
                "summary": "Get curriculum detail",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Not found", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/api/v1/curricula/{id}/lessons": {
            "get": {
                "tags": ["Curricula"],
                "summary": "List curriculum lessons",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "post": {
                "tags": ["Curricula"],
                "summary": "Add a lesson to a curriculum",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/CreateLessonRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/api/v1/curricula/{id}/assignments": {
            "put": {
                "tags": ["Curricula"],
                "summary": "Replace the curriculum assignment structure",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/UpdateCurriculumAssignmentsRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Not found", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/api/v1/curricula/{id}/audit": {
            "get": {
                "tags": ["Curricula"],
                "summary": "Curriculum audit trail",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "limit", "in": "query", "required": false, "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Not found", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/api/v1/curricula/{id}/progress/recompute": {
            "post": {
                "tags": ["Curricula"],
                "summary": "Recompute curriculum progress summaries",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "async", "in": "query", "required": false, "type": "boolean"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/RecomputeRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "202": {"description": "Queued", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/api/v1/progress": {
            "post": {
                "tags": ["Progress"],
                "summary": "Record lesson progress",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/RecordProgressRequest"}}
                ],
                "responses": {
                    "200": {"description": "Updated", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Invalid payload", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "422": {"description": "Outside assignment coverage or invalid transition", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/api/v1/progress/{id}/verify": {
            "post": {
                "tags": ["Progress"],
                "summary": "Verify completed progress",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/VerifyProgressRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "422": {"description": "Progress not completed", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/api/v1/teachers/{id}/progress": {
            "get": {
                "tags": ["Progress"],
                "summary": "Teacher progress overview",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/api/v1/assignments/{id}/progress": {
            "get": {
                "tags": ["Progress"],
                "summary": "Assignment completion percentage",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/api/v1/assignments/{id}/lessons/progress": {
            "get": {
                "tags": ["Progress"],
                "summary": "Lesson progress of an assignment",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Not found", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/api/v1/assignments/{id}/progress/export": {
            "get": {
                "tags": ["Progress"],
                "summary": "Export assignment progress",
                "produces": ["text/csv", "application/pdf"],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "format", "in": "query", "type": "string", "enum": ["csv", "pdf"]}
                ],
                "responses": {
                    "200": {"description": "File", "schema": {"type": "file"}},
                    "403": {"description": "Exports disabled", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/api/v1/lessons/{lessonId}/assignments/{id}/completion": {
            "get": {
                "tags": ["Progress"],
                "summary": "Lesson completion within an assignment",
                "parameters": [
                    {"name": "lessonId", "in": "path", "required": true, "type": "string"},
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "422": {"description": "Lesson outside assignment curriculum", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        }
    },
    "definitions": {
        "CreateCurriculumRequest": {
            "type": "object",
            "required": ["name", "code", "numberOfQuarters", "actorId"],
            "properties": {
                "name": {"type": "string"},
                "code": {"type": "string"},
                "description": {"type": "string"},
                "numberOfQuarters": {"type": "integer", "minimum": 1, "maximum": 4},
                "status": {"type": "string"},
                "actorId": {"type": "string"}
            }
        },
        "CreateLessonRequest": {
            "type": "object",
            "required": ["title", "quarter", "orderInQuarter"],
            "properties": {
                "title": {"type": "string"},
                "description": {"type": "string"},
                "quarter": {"type": "integer"},
                "orderInQuarter": {"type": "integer"},
                "gradeCodes": {"type": "array", "items": {"type": "string"}},
                "actorId": {"type": "string"}
            }
        },
        "CampusAssignmentInput": {
            "type": "object",
            "required": ["campusId"],
            "properties": {
                "campusId": {"type": "string"},
                "teacherIds": {"type": "array", "items": {"type": "string"}},
                "gradeCodes": {"type": "array", "items": {"type": "string"}},
                "groupCodes": {"type": "array", "items": {"type": "string"}}
            }
        },
        "UpdateCurriculumAssignmentsRequest": {
            "type": "object",
            "required": ["actorId"],
            "properties": {
                "campusAssignments": {"type": "array", "items": {"$ref": "#/definitions/CampusAssignmentInput"}},
                "actorId": {"type": "string"}
            }
        },
        "RecomputeRequest": {
            "type": "object",
            "required": ["actorId"],
            "properties": {
                "actorId": {"type": "string"}
            }
        },
        "RecordProgressRequest": {
            "type": "object",
            "required": ["teacherId", "lessonId", "assignmentId", "status"],
            "properties": {
                "teacherId": {"type": "string"},
                "lessonId": {"type": "string"},
                "assignmentId": {"type": "string"},
                "gradeCode": {"type": "string"},
                "groupCode": {"type": "string"},
                "status": {"type": "string", "enum": ["not_started", "in_progress", "completed", "skipped", "rescheduled"]},
                "evidenceRefs": {"type": "array", "items": {"type": "string"}},
                "notes": {"type": "string"},
                "actorId": {"type": "string"}
            }
        },
        "VerifyProgressRequest": {
            "type": "object",
            "required": ["verifierId"],
            "properties": {
                "verifierId": {"type": "string"}
            }
        },
        "Pagination": {
            "type": "object",
            "properties": {
                "page": {"type": "integer"},
                "page_size": {"type": "integer"},
                "total_count": {"type": "integer"}
            }
        },
        "APIError": {
            "type": "object",
            "properties": {
                "code": {"type": "string"},
                "message": {"type": "string"},
                "status": {"type": "integer"}
            }
        },
        "ResponseEnvelope": {
            "type": "object",
            "properties": {
                "data": {"type": "object"},
                "error": {"$ref": "#/definitions/APIError"},
                "pagination": {"$ref": "#/definitions/Pagination"},
                "meta": {"type": "object"}
            }
        }
    }
}`

type swaggerDoc struct{}

// ReadDoc returns the Swagger document.
func (s *swaggerDoc) ReadDoc() string {
	return docTemplate
}

func init() {
	swag.Register(swag.Name, &swaggerDoc{})
}
