package main

import (
	"fmt"

	echoapi "github.com/trezcool/drowsiness/apps/api/echo"
)

// token prints a student token signed with secret.
func (cli *commandLine) token(studentUID, secret string) error {
	conf := *cli.conf
	conf.SecretKey = secret
	token, err := echoapi.GenerateToken(&conf, echoapi.NewStudentClaims(&conf, studentUID))
	if err != nil {
		return err
	}
	fmt.Fprintln(cli.out, token)
	return nil
}
