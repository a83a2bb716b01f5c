package apitest

import "golang.org/x/crypto/bcrypt"

// Passwords are stored hashed, the way the real API keeps them. MinCost keeps
// seeding fast.
func hashPassword(raw string) []byte {
	hashed, err := bcrypt.GenerateFromPassword([]byte(raw), bcrypt.MinCost)
	if err != nil {
		panic(err)
	}
	return hashed
}

func verifyPassword(raw string, hashed []byte) bool {
	return bcrypt.CompareHashAndPassword(hashed, []byte(raw)) == nil
}
