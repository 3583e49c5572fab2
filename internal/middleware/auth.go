package middleware

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// Тип для ключа контекста.
type contextKey string

// Ключ для хранения идентификатора участника в контексте.
const MemberIDKey contextKey = "memberID"

// Переменная окружения с ключом проверки подписи токенов.
// Токены выпускает внешний сервис идентификации: здесь мы только проверяем
// подпись и извлекаем идентификатор уже аутентифицированного участника.
const envJWTSecret = "JWT_SECRET"

// defaultJWTSecret используется, когда переменная окружения не задана
// (локальная разработка).
const defaultJWTSecret = "local-dev-secret"

// Структура для данных участника в JWT (claims).
type memberClaims struct {
	MemberID string `json:"member_id"`
	jwt.RegisteredClaims
}

// Authenticator извлекает идентификатор участника из подписанного
// bearer-токена и кладет его в контекст запроса. Сам процесс аутентификации
// (логин, выпуск токена) - внешняя зона ответственности.
func Authenticator(next http.Handler) http.Handler {
	secret := jwtSecret()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			log.Println("[AuthMiddleware] Заголовок Authorization отсутствует")
			http.Error(w, "Требуется идентификация участника", http.StatusUnauthorized)
			return
		}

		// Проверяем формат "Bearer token"
		headerParts := strings.Split(authHeader, " ")
		if len(headerParts) != 2 || strings.ToLower(headerParts[0]) != "bearer" {
			log.Printf("[AuthMiddleware] Неверный формат заголовка Authorization: %s", authHeader)
			http.Error(w, "Неверный формат токена", http.StatusUnauthorized)
			return
		}

		tokenString := headerParts[1]

		// Парсим и валидируем токен
		claims := &memberClaims{}
		token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
			// Убеждаемся, что метод подписи - HS256
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("неожиданный метод подписи: %v", token.Header["alg"])
			}
			return secret, nil
		})

		if err != nil {
			log.Printf("[AuthMiddleware] Ошибка парсинга/валидации токена: %v", err)
			http.Error(w, "Невалидный токен", http.StatusUnauthorized)
			return
		}

		if !token.Valid || claims.MemberID == "" {
			log.Println("[AuthMiddleware] Предоставлен невалидный токен (возможно, истек)")
			http.Error(w, "Невалидный токен", http.StatusUnauthorized)
			return
		}

		// Добавляем идентификатор участника в контекст запроса
		ctx := context.WithValue(r.Context(), MemberIDKey, claims.MemberID)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetMemberIDFromContext извлекает идентификатор участника из контекста.
// Возвращает идентификатор и true, если он найден, иначе пустую строку и false.
func GetMemberIDFromContext(ctx context.Context) (string, bool) {
	memberID, ok := ctx.Value(MemberIDKey).(string)
	return memberID, ok && memberID != ""
}

// jwtSecret возвращает ключ проверки подписи из окружения.
func jwtSecret() []byte {
	if v, ok := os.LookupEnv(envJWTSecret); ok && v != "" {
		return []byte(v)
	}
	log.Printf("Переменная окружения '%s' не установлена, используется ключ по умолчанию", envJWTSecret)
	return []byte(defaultJWTSecret)
}
