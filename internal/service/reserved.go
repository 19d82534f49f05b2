package service

// Пути, которые нельзя занять короткой ссылкой: служебные страницы,
// счётчик посещений и статические файлы админки
var reservedPaths = map[string]struct{}{
	"login":              {},
	"admin":              {},
	"__total_count":      {},
	"admin.html":         {},
	"login.html":         {},
	"daisyui@5.css":      {},
	"tailwindcss@4.js":   {},
	"qr-code-styling.js": {},
	"zxing.js":           {},
	"robots.txt":         {},
	"wechat.svg":         {},
	"favicon.svg":        {},
}

// IsReservedPath проверяет принадлежность пути защищённому пространству имён
func IsReservedPath(path string) bool {
	_, ok := reservedPaths[path]
	return ok
}

// ReservedPaths возвращает копию списка зарезервированных путей
func ReservedPaths() []string {
	paths := make([]string, 0, len(reservedPaths))
	for p := range reservedPaths {
		paths = append(paths, p)
	}
	return paths
}
