package auth

// Claims es la identidad que entrega el proveedor: quién es, nada más.
// El rol se resuelve por tenant desde las membresías.
type Claims struct {
	UserID string
	Email  string
}
