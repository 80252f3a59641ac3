package db

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"

	"github.com/go-redis/redis/v8"
	"github.com/xuri/excelize/v2"

	"github.com/xela-labs45/firstChoiceCoverPages/models"
)

const (
	subjectsKey         = "subjects" // List: subject presets in catalogue order
	classesKey          = "classes"  // Set: Stores all class IDs
	classInfoPrefix     = "class:"   // Hash prefix: class:{id} -> stores class details
	classStudentsPrefix = "class:"   // List prefix: class:{id}:students -> roster order
	studentInfoPrefix   = "student:" // Hash prefix: student:{id} -> stores student details
)

// DefaultSubjects is the catalogue offered by the form before any custom
// subjects are added.
var DefaultSubjects = []string{
	"Mathematics", "Science", "English", "History", "Geography",
	"Art", "Physics", "Chemistry", "Biology", "Computer Science",
	"Physical Education", "Music", "Drama", "Economics",
}

// RedisService stores subject presets and class rosters. Generation itself
// never touches it; it only feeds the form and whole-class batch runs.
type RedisService struct {
	Client *redis.Client
	Ctx    context.Context // Base context
}

// NewRedisService creates a new RedisService instance
func NewRedisService(client *redis.Client) *RedisService {
	return &RedisService{
		Client: client,
		Ctx:    context.Background(),
	}
}

// Helper to generate class info key
func getClassInfoKey(classID string) string {
	return classInfoPrefix + classID
}

// Helper to generate class roster list key
func getClassStudentsKey(classID string) string {
	return classStudentsPrefix + classID + ":students"
}

// Helper to generate student info key
func getStudentInfoKey(studentID string) string {
	return studentInfoPrefix + studentID
}

// --- Subject Presets ---

// GetSubjects returns the subject presets in catalogue order.
func (s *RedisService) GetSubjects() ([]string, error) {
	subjects, err := s.Client.LRange(s.Ctx, subjectsKey, 0, -1).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return []string{}, nil
		}
		log.Printf("Error getting subjects: %v", err)
		return nil, fmt.Errorf("failed to get subjects from Redis: %w", err)
	}
	return subjects, nil
}

// AddSubject appends a custom subject to the presets, skipping duplicates.
func (s *RedisService) AddSubject(name string) error {
	if name == "" {
		return errors.New("subject name cannot be empty")
	}
	_, err := s.Client.LPos(s.Ctx, subjectsKey, name, redis.LPosArgs{}).Result()
	if err == nil {
		return nil // Already present
	}
	if !errors.Is(err, redis.Nil) {
		log.Printf("Error checking subject %s: %v", name, err)
		return fmt.Errorf("failed to check subject in Redis: %w", err)
	}
	if err := s.Client.RPush(s.Ctx, subjectsKey, name).Err(); err != nil {
		log.Printf("Error adding subject %s: %v", name, err)
		return fmt.Errorf("failed to add subject to Redis: %w", err)
	}
	log.Printf("Added subject preset: %s", name)
	return nil
}

// SeedDefaultSubjects loads the default catalogue if no presets exist yet.
func (s *RedisService) SeedDefaultSubjects() error {
	count, err := s.Client.LLen(s.Ctx, subjectsKey).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("failed to check subject presets: %w", err)
	}
	if count > 0 {
		log.Printf("Found %d existing subject presets. Skipping seed.", count)
		return nil
	}

	log.Println("No subject presets found. Seeding default catalogue...")
	for _, name := range DefaultSubjects {
		if err := s.Client.RPush(s.Ctx, subjectsKey, name).Err(); err != nil {
			return fmt.Errorf("failed to seed subject %s: %w", name, err)
		}
	}
	return nil
}

// --- Class Operations ---

// AddClass adds a new class to Redis
func (s *RedisService) AddClass(clazz models.Clazz) error {
	if clazz.ID == "" || clazz.Name == "" {
		return errors.New("class ID and Name cannot be empty")
	}
	classKey := getClassInfoKey(clazz.ID)
	pipe := s.Client.Pipeline()

	// Add class ID to the global set of classes
	pipe.SAdd(s.Ctx, classesKey, clazz.ID)
	// Store class details in a Hash
	pipe.HMSet(s.Ctx, classKey, map[string]interface{}{
		"id":   clazz.ID,
		"name": clazz.Name,
	})

	_, err := pipe.Exec(s.Ctx)
	if err != nil {
		log.Printf("Error adding class %s: %v", clazz.ID, err)
		return fmt.Errorf("failed to add class to Redis: %w", err)
	}
	log.Printf("Added class: %s (%s)", clazz.Name, clazz.ID)
	return nil
}

// GetClassByID retrieves a class by its ID
func (s *RedisService) GetClassByID(classID string) (*models.Clazz, error) {
	classKey := getClassInfoKey(classID)
	data, err := s.Client.HGetAll(s.Ctx, classKey).Result()

	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil // Not found is not necessarily an error in API context
		}
		log.Printf("Error getting class %s: %v", classID, err)
		return nil, fmt.Errorf("failed to get class from Redis: %w", err)
	}
	if len(data) == 0 {
		return nil, nil // Not found
	}

	return &models.Clazz{
		ID:   data["id"],
		Name: data["name"],
	}, nil
}

// GetAllClasses retrieves all classes
func (s *RedisService) GetAllClasses() ([]models.Clazz, error) {
	classIDs, err := s.Client.SMembers(s.Ctx, classesKey).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return []models.Clazz{}, nil // No classes found
		}
		log.Printf("Error getting all class IDs: %v", err)
		return nil, fmt.Errorf("failed to get class IDs from Redis: %w", err)
	}

	classes := make([]models.Clazz, 0, len(classIDs))
	for _, id := range classIDs {
		clazz, err := s.GetClassByID(id)
		if err != nil {
			// Log the error but continue trying to fetch others
			log.Printf("Error fetching details for class %s: %v", id, err)
			continue
		}
		if clazz != nil {
			classes = append(classes, *clazz)
		}
	}
	return classes, nil
}

// ClassExists checks if a class ID exists in the classes set
func (s *RedisService) ClassExists(classID string) (bool, error) {
	exists, err := s.Client.SIsMember(s.Ctx, classesKey, classID).Result()
	if err != nil {
		log.Printf("Error checking existence for class %s: %v", classID, err)
		return false, fmt.Errorf("failed to check class existence: %w", err)
	}
	return exists, nil
}

// --- Roster Operations ---

// AddStudent appends a student to their class roster
func (s *RedisService) AddStudent(student models.Student) error {
	if student.ID == "" || student.Name == "" || student.Surname == "" || student.ClassID == "" {
		return errors.New("student ID, Name, Surname, and ClassID cannot be empty")
	}

	exists, err := s.ClassExists(student.ClassID)
	if err != nil {
		return err
	}
	if !exists {
		log.Printf("Warning: Adding student %s to non-existent class %s. Creating class.", student.ID, student.ClassID)
		err := s.AddClass(models.Clazz{ID: student.ClassID, Name: "Class " + student.ClassID})
		if err != nil {
			log.Printf("Failed to auto-create class %s: %v", student.ClassID, err)
			return fmt.Errorf("student's class %s does not exist and auto-creation failed: %w", student.ClassID, err)
		}
	}

	studentKey := getStudentInfoKey(student.ID)
	classStudentsKey := getClassStudentsKey(student.ClassID)

	pipe := s.Client.Pipeline()
	// Roster keeps import order, so batch output is stable
	pipe.RPush(s.Ctx, classStudentsKey, student.ID)
	// Store student details in a Hash
	pipe.HMSet(s.Ctx, studentKey, map[string]interface{}{
		"id":      student.ID,
		"name":    student.Name,
		"surname": student.Surname,
		"classId": student.ClassID,
	})

	_, execErr := pipe.Exec(s.Ctx)
	if execErr != nil {
		log.Printf("Error adding student %s to class %s: %v", student.ID, student.ClassID, execErr)
		return fmt.Errorf("failed to add student to Redis: %w", execErr)
	}
	return nil
}

// GetStudentByID retrieves a student by their ID
func (s *RedisService) GetStudentByID(studentID string) (*models.Student, error) {
	studentKey := getStudentInfoKey(studentID)
	data, err := s.Client.HGetAll(s.Ctx, studentKey).Result()

	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil // Not found
		}
		log.Printf("Error getting student %s: %v", studentID, err)
		return nil, fmt.Errorf("failed to get student from Redis: %w", err)
	}
	if len(data) == 0 {
		return nil, nil // Not found
	}

	return &models.Student{
		ID:      data["id"],
		Name:    data["name"],
		Surname: data["surname"],
		ClassID: data["classId"],
	}, nil
}

// GetStudentsByClassID retrieves the roster for a class in import order
func (s *RedisService) GetStudentsByClassID(classID string) ([]models.Student, error) {
	classStudentsKey := getClassStudentsKey(classID)
	studentIDs, err := s.Client.LRange(s.Ctx, classStudentsKey, 0, -1).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return []models.Student{}, nil // No students in this class
		}
		log.Printf("Error getting student IDs for class %s: %v", classID, err)
		return nil, fmt.Errorf("failed to get student IDs from Redis for class %s: %w", classID, err)
	}

	students := make([]models.Student, 0, len(studentIDs))
	for _, id := range studentIDs {
		student, err := s.GetStudentByID(id)
		if err != nil {
			log.Printf("Error fetching details for student %s in class %s: %v", id, classID, err)
			continue // Skip this student if details can't be fetched
		}
		if student != nil {
			students = append(students, *student)
		}
	}
	return students, nil
}

// --- Excel Import ---

// ImportRosterFromExcel reads an Excel file stream (columns: Name, Surname,
// header in row 1) and appends the rows to the class roster.
func (s *RedisService) ImportRosterFromExcel(file io.Reader, classID string) (int, error) {
	exists, err := s.ClassExists(classID)
	if err != nil {
		return 0, fmt.Errorf("failed to check class existence before import: %w", err)
	}
	if !exists {
		log.Printf("Import target class %s does not exist. Creating it.", classID)
		err := s.AddClass(models.Clazz{ID: classID, Name: "Class " + classID})
		if err != nil {
			return 0, fmt.Errorf("target class %s does not exist and failed to create it: %w", classID, err)
		}
	}

	f, err := excelize.OpenReader(file)
	if err != nil {
		log.Printf("Error opening Excel reader: %v", err)
		return 0, fmt.Errorf("failed to open excel file: %w", err)
	}
	defer func() {
		if err := f.Close(); err != nil {
			log.Printf("Error closing excel file: %v", err)
		}
	}()

	// Assuming data is in the first sheet
	sheetName := f.GetSheetName(0)
	if sheetName == "" {
		return 0, errors.New("excel file does not contain any sheets")
	}

	rows, err := f.GetRows(sheetName)
	if err != nil {
		log.Printf("Error getting rows from sheet '%s': %v", sheetName, err)
		return 0, fmt.Errorf("failed to get rows from sheet %s: %w", sheetName, err)
	}

	studentsToAdd := ParseRosterRows(rows, classID)

	importedCount := 0
	log.Printf("Attempting to add %d students from Excel file to class %s", len(studentsToAdd), classID)
	for _, student := range studentsToAdd {
		err := s.AddStudent(student)
		if err != nil {
			log.Printf("Error adding student %s %s (%s) during import: %v", student.Name, student.Surname, student.ID, err)
			continue // Continue processing other students
		}
		importedCount++
	}

	log.Printf("Successfully imported %d students into class %s", importedCount, classID)
	return importedCount, nil
}

// ParseRosterRows turns spreadsheet rows into roster entries. Row 1 is the
// header; rows missing a name or surname are skipped. IDs are derived from
// the class and row number since covers never show them.
func ParseRosterRows(rows [][]string, classID string) []models.Student {
	students := []models.Student{}
	for i, row := range rows {
		if i == 0 {
			continue // Skip header row
		}

		var name, surname string
		if len(row) > 0 {
			name = row[0]
		}
		if len(row) > 1 {
			surname = row[1]
		}

		if name == "" || surname == "" {
			log.Printf("Skipping row %d due to missing Name or Surname (Name: '%s', Surname: '%s')", i+1, name, surname)
			continue
		}

		students = append(students, models.Student{
			ID:      fmt.Sprintf("%s_%03d", classID, i),
			Name:    name,
			Surname: surname,
			ClassID: classID,
		})
	}
	return students
}

// --- Utility ---

// InitializeRedisClient creates and tests a Redis client connection.
// REDIS_ADDR, REDIS_PASSWORD and REDIS_DB override the defaults.
func InitializeRedisClient() *redis.Client {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		addr = "127.0.0.1:6379"
	}
	dbNum := 0
	if v := os.Getenv("REDIS_DB"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			log.Fatalf("Invalid REDIS_DB value %q: %v", v, err)
		}
		dbNum = n
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: os.Getenv("REDIS_PASSWORD"),
		DB:       dbNum,
	})

	// Ping Redis to check connection
	_, err := rdb.Ping(context.Background()).Result()
	if err != nil {
		log.Fatalf("Could not connect to Redis: %v", err)
	}

	log.Printf("Successfully connected to Redis at %s (db %d)", addr, dbNum)
	return rdb
}
